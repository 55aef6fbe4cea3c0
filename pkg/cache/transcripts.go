package cache

import "time"

const transcriptNamespace = "transcript"

// Transcripts memoises audio-to-text results keyed by the audio content.
// Only successful transcripts are stored.
type Transcripts struct {
	c   *Cache
	ttl time.Duration
}

func NewTranscripts(c *Cache, ttl time.Duration) *Transcripts {
	return &Transcripts{c: c, ttl: ttl}
}

func transcriptKey(audio []byte, mimeType string) string {
	return KeyFromBytes(transcriptNamespace, []byte(mimeType), audio)
}

func (t *Transcripts) Get(audio []byte, mimeType string) (string, bool) {
	v, ok := t.c.Get(transcriptKey(audio, mimeType))
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

func (t *Transcripts) Put(audio []byte, mimeType, text string) {
	if text == "" {
		return
	}
	t.c.Set(transcriptKey(audio, mimeType), text, t.ttl)
}
