package jsonutil

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_SortsMapKeys(t *testing.T) {
	data, err := Marshal(map[string]int{"zeta": 1, "alpha": 2, "mid": 3})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"mid":3,"zeta":1}`, string(data))
}

func TestMarshalIndent(t *testing.T) {
	data, err := MarshalIndent(map[string]int{"a": 1}, "  ")
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"a\": 1")
}

func TestUnmarshal(t *testing.T) {
	var v map[string]any
	require.NoError(t, Unmarshal([]byte(`{"name":"test","value":42}`), &v))
	assert.Equal(t, "test", v["name"])
	assert.Equal(t, float64(42), v["value"])

	assert.Error(t, Unmarshal([]byte(`{invalid}`), &v))
}

func TestConvert_StructToTypedView(t *testing.T) {
	type port struct {
		Port  int    `json:"port"`
		State string `json:"state"`
	}
	src := map[string]any{"port": 22, "state": "open", "extra": true}

	var dst port
	require.NoError(t, Convert(src, &dst))
	assert.Equal(t, port{Port: 22, State: "open"}, dst)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid([]byte(`{"a":[1,2]}`)))
	assert.False(t, Valid([]byte(`{"a":`)))
}

func TestEncoder_WritesLines(t *testing.T) {
	var buf bytes.Buffer
	enc := NewStreamEncoder(&buf)
	require.NoError(t, enc.Encode(map[string]int{"a": 1}))
	require.NoError(t, enc.Encode([]string{"x"}))

	assert.Equal(t, "{\"a\":1}\n[\"x\"]\n", buf.String())
}

func TestEncoder_ConcurrentLinesStayWhole(t *testing.T) {
	var buf bytes.Buffer
	enc := NewStreamEncoder(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = enc.Encode(map[string]int{"i": i})
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 50)
	for _, line := range lines {
		assert.True(t, Valid([]byte(line)), line)
	}
}

func TestDecoder_ReadsStream(t *testing.T) {
	dec := NewStreamDecoder(strings.NewReader("{\"a\":1}\n{\"a\":2}\n"))

	var got []int
	for {
		var v struct {
			A int `json:"a"`
		}
		err := dec.Decode(&v)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, v.A)
	}
	assert.Equal(t, []int{1, 2}, got)
}
