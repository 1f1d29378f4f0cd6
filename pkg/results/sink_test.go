package results

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSink_Append(t *testing.T) {
	path := filepath.Join(t.TempDir(), "owa_valid_accounts.txt")
	sink := NewFileSink(path)

	require.NoError(t, sink.Append([]string{"alice:Summer2024!", "bob:Winter2024! - check manually"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "alice:Summer2024!\nbob:Winter2024! - check manually\n", string(data))
	assert.Equal(t, path, sink.Location())
}

func TestFileSink_NeverTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.txt")
	require.NoError(t, os.WriteFile(path, []byte("previous:run\n"), 0644))

	sink := NewFileSink(path)
	require.NoError(t, sink.Append([]string{"carol:Spring2024!"}))
	require.NoError(t, sink.Append(nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "previous:run\ncarol:Spring2024!\n", string(data))
}

func TestFileSink_BadPath(t *testing.T) {
	sink := NewFileSink(filepath.Join(t.TempDir(), "missing", "results.txt"))
	assert.Error(t, sink.Append([]string{"x:y"}))
}

func TestMemorySink(t *testing.T) {
	sink := NewMemorySink()
	require.NoError(t, sink.Append([]string{"a:b"}))
	require.NoError(t, sink.Append([]string{"c:d"}))

	lines := sink.Lines()
	assert.Equal(t, []string{"a:b", "c:d"}, lines)

	lines[0] = "mutated"
	assert.Equal(t, "a:b", sink.Lines()[0])
	assert.Equal(t, "memory", sink.Location())
}
