//go:build integration

package transcriber

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requireFFmpeg skips the test when ffmpeg is not on PATH, rather than
// failing — this test exercises a real subprocess and has no business
// running in an environment without the media tool installed.
func requireFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed, skipping chunking integration test")
	}
}

func generateSilentAudio(t *testing.T, seconds int) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "silence.mp3")
	cmd := exec.Command("ffmpeg", "-hide_banner", "-loglevel", "error", "-y",
		"-f", "lavfi", "-i", "anullsrc=r=16000:cl=mono",
		"-t", itoa(seconds), path)
	require.NoError(t, cmd.Run())
	return path
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func TestSplitAudioIntoChunksProducesSortedChunks(t *testing.T) {
	requireFFmpeg(t)

	audioPath := generateSilentAudio(t, 3)
	tmpDir, chunks, err := splitAudioIntoChunks(audioPath, 1, 16, 10*1024*1024)
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	assert.GreaterOrEqual(t, len(chunks), 2)
	for i, c := range chunks {
		assert.Contains(t, c, "chunk_")
		if i > 0 {
			assert.Less(t, chunks[i-1], c)
		}
	}
}

func TestSplitAudioIntoChunksErrorsWhenChunkTooLarge(t *testing.T) {
	requireFFmpeg(t)

	audioPath := generateSilentAudio(t, 2)
	_, _, err := splitAudioIntoChunks(audioPath, 1, 320, 10)

	assert.Error(t, err)
}
