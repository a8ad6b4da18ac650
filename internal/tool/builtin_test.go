package tool

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistryPrepopulatesBuiltins(t *testing.T) {
	r := NewRegistry()
	resolved := r.Resolve([]string{"calculator", "current_time", "missing_tool"})
	require.Len(t, resolved, 2)
	assert.Equal(t, "calculator", resolved[0].Name())
	assert.Equal(t, "current_time", resolved[1].Name())
}

func TestRegisterOverridesExistingTool(t *testing.T) {
	r := NewRegistry()
	r.Register(&CalculatorTool{})

	resolved := r.Resolve([]string{"calculator"})
	require.Len(t, resolved, 1)
	assert.Equal(t, "calculator", resolved[0].Name())
}

func TestCalculatorToolEvaluatesOps(t *testing.T) {
	c := &CalculatorTool{}
	out, err := c.Call(context.Background(), `{"op":"+","a":2,"b":3}`)
	require.NoError(t, err)
	assert.Equal(t, "5", out)

	_, err = c.Call(context.Background(), `{"op":"/","a":1,"b":0}`)
	assert.Error(t, err)

	_, err = c.Call(context.Background(), `{"op":"%","a":1,"b":2}`)
	assert.Error(t, err)
}

func TestFileReaderAndWriterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	w := &FileWriterTool{}
	out, err := w.Call(context.Background(), `{"path":"`+path+`","content":"hello"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 5 bytes")

	r := &FileReaderTool{}
	content, err := r.Call(context.Background(), `{"path":"`+path+`"}`)
	require.NoError(t, err)
	assert.Equal(t, "hello", content)
}

func TestFileReaderMissingFileErrors(t *testing.T) {
	r := &FileReaderTool{}
	_, err := r.Call(context.Background(), `{"path":"`+filepath.Join(os.TempDir(), "does-not-exist-kaflow")+`"}`)
	assert.Error(t, err)
}

func TestCurrentTimeToolReturnsRFC3339(t *testing.T) {
	c := &CurrentTimeTool{}
	out, err := c.Call(context.Background(), "")
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}
