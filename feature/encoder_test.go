package feature

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/insurekit/core"
	"github.com/rushteam/insurekit/dataset"
)

// column 创建 object 列，空串表示缺失
func column(name string, values ...string) *dataset.Column {
	vals := make([]any, len(values))
	for i, v := range values {
		if v != "" {
			vals[i] = v
		}
	}
	return dataset.NewStringColumn(name, vals...)
}

// codes 返回编码结果，缺失为 -1
func codes(c *dataset.Column) []int64 {
	out := make([]int64, c.Len())
	for i := range out {
		v, ok := c.Value(i).(int64)
		if !ok {
			out[i] = -1
			continue
		}
		out[i] = v
	}
	return out
}

func TestLabelEncoder_FitTransform(t *testing.T) {
	enc := NewLabelEncoder(nil)

	out := enc.FitTransform(column("region", "southwest", "southeast", "", "northwest", "southeast"))
	assert.Equal(t, dataset.DTypeInt, out.DType())
	assert.Equal(t, []int64{2, 1, -1, 0, 1}, codes(out))
	assert.True(t, out.IsMissing(2))
	assert.Equal(t, []string{"northwest", "southeast", "southwest"}, enc.Classes["region"])
}

func TestLabelEncoder_RefitPerColumn(t *testing.T) {
	// 与训练时的类别表无关，每次都按当前列重新拟合
	enc := NewLabelEncoder(map[string][]string{"smoker": {"no", "yes"}})

	out, err := enc.Encode(column("smoker", "yes", "yes"), EncoderRefit)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 0}, codes(out))
}

func TestLabelEncoder_Modes(t *testing.T) {
	tests := []struct {
		name    string
		classes map[string][]string
		col     *dataset.Column
		mode    string
		want    []int64
		wantErr func(error) bool
	}{
		{
			name:    "fitted uses stored classes",
			classes: map[string][]string{"smoker": {"no", "yes"}},
			col:     column("smoker", "yes", "yes"),
			mode:    EncoderFitted,
			want:    []int64{1, 1},
		},
		{
			name:    "fitted rejects unseen label",
			classes: map[string][]string{"smoker": {"no", "yes"}},
			col:     column("smoker", "maybe"),
			mode:    EncoderFitted,
			wantErr: core.IsInvalidInput,
		},
		{
			name:    "fitted without classes",
			col:     column("sex", "male"),
			mode:    EncoderFitted,
			wantErr: core.IsNotFound,
		},
		{
			name: "auto falls back to refit",
			col:  column("sex", "male", "female"),
			mode: EncoderAuto,
			want: []int64{1, 0},
		},
		{
			name:    "auto prefers stored classes",
			classes: map[string][]string{"sex": {"female", "male", "other"}},
			col:     column("sex", "other"),
			mode:    EncoderAuto,
			want:    []int64{2},
		},
		{
			name:    "unknown mode",
			col:     column("sex", "male"),
			mode:    "onehot",
			wantErr: core.IsInvalidInput,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := NewLabelEncoder(tt.classes)
			out, err := enc.Encode(tt.col, tt.mode)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, tt.wantErr(err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, codes(out))
		})
	}
}

func TestParseLabelEncoder(t *testing.T) {
	enc, err := ParseLabelEncoder([]byte(`{"kind": "label", "classes": {"sex": ["female", "male"]}}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"female", "male"}, enc.Classes["sex"])

	enc, err = ParseLabelEncoder([]byte(`{}`))
	require.NoError(t, err)
	assert.NotNil(t, enc.Classes)

	_, err = ParseLabelEncoder([]byte(`{"kind": "onehot"}`))
	assert.True(t, core.IsInvalidInput(err))

	_, err = ParseLabelEncoder([]byte(`{"classes": {"sex": ["male", "female"]}}`))
	assert.True(t, core.IsInvalidInput(err))
}

func TestFileEncoderLoader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "target_encoder.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"kind": "label"}`), 0o644))

	enc, err := NewFileEncoderLoader().Load(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, enc.Classes)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewFileEncoderLoader().Load(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)
}
