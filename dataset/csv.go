package dataset

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	dataframe "github.com/rocketlaunchr/dataframe-go"
	"github.com/rocketlaunchr/dataframe-go/exports"
	"github.com/rocketlaunchr/dataframe-go/imports"

	"github.com/rushteam/insurekit/core"
)

// DefaultNATokens 是读取 CSV 时默认识别为缺失值的字符串（与 pandas 默认一致）。
// 注意 "na"（小写）不在其中，需要通过 ReadOptions.MissingTokens 额外指定。
var DefaultNATokens = []string{
	"", "#N/A", "#N/A N/A", "#NA", "-1.#IND", "-1.#QNAN", "-NaN", "-nan",
	"1.#IND", "1.#QNAN", "<NA>", "N/A", "NA", "NULL", "NaN", "None",
	"n/a", "nan", "null",
}

// nilToken 预处理后代表缺失值的单元格，交给 imports.LoadFromCSV 的 NilValue 识别
const nilToken = "\x00"

var utf8BOM = []byte("\ufeff")

// ReadOptions CSV 读取选项
type ReadOptions struct {
	// MissingTokens 额外的缺失值标记（如 "na"）
	MissingTokens []string
	// KeepDefaultNA 是否保留 DefaultNATokens，默认 true
	KeepDefaultNA *bool
	// Comma 分隔符，默认 ','
	Comma rune
}

func (o ReadOptions) naSet() map[string]struct{} {
	set := make(map[string]struct{})
	if o.KeepDefaultNA == nil || *o.KeepDefaultNA {
		for _, t := range DefaultNATokens {
			set[t] = struct{}{}
		}
	} else {
		set[""] = struct{}{}
	}
	for _, t := range o.MissingTokens {
		set[t] = struct{}{}
	}
	return set
}

// ReadCSV 读取带表头的 CSV。开头的 UTF-8 BOM 会被跳过，重复列名按 "name.1"、"name.2" 重命名。
func ReadCSV(ctx context.Context, r io.Reader, opts ReadOptions) (*Frame, error) {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(b, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	reader := csv.NewReader(br)
	if opts.Comma != 0 {
		reader.Comma = opts.Comma
	}

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, core.NewDomainError(core.ModuleDataset, core.ErrorCodeInvalidInput, "dataset: no columns to parse from file")
	}
	if err != nil {
		return nil, core.WrapError(core.ModuleDataset, core.ErrorCodeInvalidInput, "dataset: read header", err)
	}
	names := dedupNames(header)

	// 缺失值统一替换为 nilToken 后重新编码，列名去重后的表头一并写入
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	_ = writer.Write(names)
	na := opts.naSet()
	rows := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, core.WrapError(core.ModuleDataset, core.ErrorCodeInvalidInput, "dataset: read record", err)
		}
		for i, v := range record {
			if _, ok := na[v]; ok {
				record[i] = nilToken
			}
		}
		if err := writer.Write(record); err != nil {
			return nil, core.WrapError(core.ModuleDataset, core.ErrorCodeInvalidInput, "dataset: read record", err)
		}
		rows++
	}
	writer.Flush()

	if rows == 0 {
		cols := make([]*Column, len(names))
		for i, name := range names {
			cols[i] = typedColumn(name, nil)
		}
		return NewFrame(cols...)
	}

	dictate := make(map[string]interface{}, len(names))
	for _, name := range names {
		dictate[name] = ""
	}
	nilValue := nilToken
	df, err := imports.LoadFromCSV(ctx, bytes.NewReader(buf.Bytes()), imports.CSVLoadOptions{
		DictateDataType: dictate,
		NilValue:        &nilValue,
	})
	if err != nil {
		return nil, core.WrapError(core.ModuleDataset, core.ErrorCodeInvalidInput, "dataset: load csv", err)
	}

	cols := make([]*Column, len(df.Series))
	for j, s := range df.Series {
		cols[j] = typedColumn(s.Name(), stringValues(s))
	}
	return NewFrame(cols...)
}

// ReadCSVFile 从文件读取 CSV
func ReadCSVFile(ctx context.Context, path string, opts ReadOptions) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, core.WrapError(core.ModuleDataset, core.ErrorCodeNotFound, "dataset: open "+path, err)
	}
	defer file.Close()

	frame, err := ReadCSV(ctx, file, opts)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return frame, nil
}

// WriteCSV 写出带表头、不带索引列的 CSV，缺失值写为空串，浮点列按 FormatFloat 渲染。
func WriteCSV(ctx context.Context, w io.Writer, f *Frame) error {
	if f.Len() == 0 {
		writer := csv.NewWriter(w)
		if err := writer.Write(f.Names()); err != nil {
			return err
		}
		writer.Flush()
		return writer.Error()
	}

	cols := f.Columns()
	series := make([]dataframe.Series, len(cols))
	for j, c := range cols {
		vals := make([]any, c.Len())
		for i := range vals {
			if text, ok := c.Text(i); ok {
				vals[i] = text
			}
		}
		series[j] = dataframe.NewSeriesString(c.Name(), nil, vals...)
	}
	null := ""
	return exports.ExportToCSV(ctx, w, dataframe.NewDataFrame(series...), exports.CSVExportOptions{NullString: &null})
}

// WriteCSVFile 写出 CSV 到文件（覆盖已存在的文件）
func WriteCSVFile(ctx context.Context, path string, f *Frame) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteCSV(ctx, file, f); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return file.Close()
}

func stringValues(s dataframe.Series) []*string {
	values := make([]*string, s.NRows())
	for i := range values {
		if v, ok := s.Value(i).(string); ok {
			values[i] = &v
		}
	}
	return values
}

func dedupNames(header []string) []string {
	seen := make(map[string]int, len(header))
	names := make([]string, len(header))
	for i, name := range header {
		n, ok := seen[name]
		if !ok {
			seen[name] = 1
			names[i] = name
			continue
		}
		candidate := name + "." + strconv.Itoa(n)
		for {
			if _, taken := seen[candidate]; !taken {
				break
			}
			n++
			candidate = name + "." + strconv.Itoa(n)
		}
		seen[name] = n + 1
		seen[candidate] = 1
		names[i] = candidate
	}
	return names
}
