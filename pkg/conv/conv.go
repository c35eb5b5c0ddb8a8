// Package conv 提供批处理中常用的小工具。
package conv

// Chunks 把 [0, n) 切分为长度不超过 size 的区间，返回每段的 [start, end)。
// size <= 0 时返回单个区间。
func Chunks(n, size int) [][2]int {
	if n <= 0 {
		return nil
	}
	if size <= 0 || size >= n {
		return [][2]int{{0, n}}
	}
	out := make([][2]int, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}
