package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"cloud.google.com/go/dialogflow/cx/apiv3/cxpb"

	"github.com/dfcx-bridge/go-bridge/metrics"
)

// artifactRegistry tracks synthesized audio files written for each session
// so they can be removed when the session ends. Entries for a session are
// only written by its reader goroutine and purged by its teardown.
type artifactRegistry struct {
	sync.Mutex
	files   map[string][]string
	counter atomic.Uint64
}

var pendingArtifacts = &artifactRegistry{
	files: make(map[string][]string),
}

// artifactExtension picks the file extension for the declared encoding.
func artifactExtension(outputAudioConfig *cxpb.OutputAudioConfig) string {

	switch outputAudioConfig.GetAudioEncoding() {
	case cxpb.OutputAudioEncoding_OUTPUT_AUDIO_ENCODING_MP3,
		cxpb.OutputAudioEncoding_OUTPUT_AUDIO_ENCODING_MP3_64_KBPS:
		return "mp3"
	case cxpb.OutputAudioEncoding_OUTPUT_AUDIO_ENCODING_OGG_OPUS:
		return "opus"
	default:
		return "wav"
	}
}

// writeArtifact stores audio, unchanged, in a new file under dir and
// records it for sessionId.
func (registry *artifactRegistry) writeArtifact(dir string, sessionId string,
	outputAudioConfig *cxpb.OutputAudioConfig, audio []byte) (path string, err error) {

	if dir == "" {
		dir = os.TempDir()
	}

	name := fmt.Sprintf("%s_%d.%s", sessionId, registry.counter.Add(1), artifactExtension(outputAudioConfig))
	path = filepath.Join(dir, name)

	if err = os.WriteFile(path, audio, 0o600); err != nil {
		return "", fmt.Errorf("writing audio file: %w", err)
	}

	registry.Lock()
	registry.files[sessionId] = append(registry.files[sessionId], path)
	registry.Unlock()

	metrics.Default.ArtifactsWritten.Inc()
	metrics.Default.ArtifactBytes.Observe(float64(len(audio)))

	return path, nil
}

// purge removes every file recorded for sessionId.
func (registry *artifactRegistry) purge(sessionId string) {

	registry.Lock()
	files := registry.files[sessionId]
	delete(registry.files, sessionId)
	registry.Unlock()

	for _, path := range files {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			getLogger().Warn("unable to remove audio file",
				"sessionId", sessionId,
				"path", path,
				"error", err)
			continue
		}
		getLogger().Debug("removed audio file",
			"sessionId", sessionId,
			"path", path)
	}
}

// pending returns the files currently recorded for sessionId.
func (registry *artifactRegistry) pending(sessionId string) []string {

	registry.Lock()
	defer registry.Unlock()
	return append([]string(nil), registry.files[sessionId]...)
}
