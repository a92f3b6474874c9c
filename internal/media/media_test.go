package media

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	cases := []struct {
		path string
		want Kind
	}{
		{"meeting.wav", KindAudio},
		{"podcast.MP3", KindAudio},
		{"/tmp/notes/voice.m4a", KindAudio},
		{"talk.opus", KindAudio},
		{"lecture.mkv", KindVideo},
		{"clip.mp4", KindVideo},
		{"screencast.webm", KindVideo},
		{"slides.pdf", KindUnknown},
		{"README", KindUnknown},
		{"archive.tar.gz", KindUnknown},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.path, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, KindOf(tc.path))
		})
	}
}

func TestKindString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "audio", KindAudio.String())
	require.Equal(t, "video", KindVideo.String())
	require.Equal(t, "unknown", KindUnknown.String())
}

func makeID3v2File(t *testing.T, title string) string {
	t.Helper()

	payload := append([]byte{0}, []byte(title)...)
	frame := append([]byte("TIT2"), 0, 0, 0, byte(len(payload)))
	frame = append(frame, 0, 0)
	frame = append(frame, payload...)

	body := frame
	header := []byte{'I', 'D', '3', 3, 0, 0}
	size := make([]byte, 4)
	binary.BigEndian.PutUint32(size, uint32(len(body)))
	header = append(header, size...)

	path := filepath.Join(t.TempDir(), "tagged.mp3")
	require.NoError(t, os.WriteFile(path, append(header, body...), 0o644))
	return path
}

func TestProbeTagsReadsID3(t *testing.T) {
	t.Parallel()

	tags, ok, err := ProbeTags(makeID3v2File(t, "Weekly Standup"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Weekly Standup", tags.Title)
	require.NotEmpty(t, tags.Format)
}

func TestProbeTagsUntaggedFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "plain.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF junk that is not tagged"), 0o644))

	_, ok, err := ProbeTags(path)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestProbeTagsMissingFile(t *testing.T) {
	t.Parallel()

	_, _, err := ProbeTags(filepath.Join(t.TempDir(), "gone.mp3"))
	require.Error(t, err)
}
