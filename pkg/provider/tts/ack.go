package tts

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
)

// ackPhrases are short filler lines spoken while the assistant is still
// thinking. They are synthesized once at startup so playback starts without a
// round trip to the backend.
var ackPhrases = []string{
	"Понимаю о чем речь.", "Давай разберемся.", "Слушаю внимательно.",
	"Продолжаем разговор.", "Я готов.", "Вникаю в суть.",
	"Разбираюсь в вопросе.", "Анализирую информацию.", "Обрабатываю данные.",
	"Изучаю детали.", "Концентрируюсь на теме.", "Воспринимаю информацию.",
	"Осмысливаю вопрос.", "Принимаю к сведению.", "Извлекаю смысл.",
	"Прорабатываю детали.", "Вникаю в контекст.", "Уясняю задачу.",
	"Принимаю запрос.", "Анализирую ситуацию.",
}

// AckCache holds pre-synthesized acknowledgement phrases.
type AckCache struct {
	mu    sync.RWMutex
	cache map[string][]byte
}

// NewAckCache returns an empty cache. Call [AckCache.Warm] before serving
// traffic; Random on a cold cache still returns a phrase, just without audio.
func NewAckCache() *AckCache {
	return &AckCache{cache: make(map[string][]byte)}
}

// Warm synthesizes every phrase through p. Individual failures are logged and
// skipped so one bad phrase does not block startup.
func (c *AckCache) Warm(ctx context.Context, p Provider, params Params) {
	for _, text := range ackPhrases {
		wav, err := p.Synthesize(ctx, text, params)
		if err != nil {
			slog.Warn("ack warmup failed", "text", text, "error", err)
			continue
		}
		c.mu.Lock()
		c.cache[text] = wav
		c.mu.Unlock()
		slog.Debug("ack cached", "text", text, "bytes", len(wav))
	}
}

// Random picks a phrase and its cached WAV. The audio is nil when the phrase
// was never warmed.
func (c *AckCache) Random() (text string, wav []byte) {
	text = ackPhrases[rand.Intn(len(ackPhrases))]
	c.mu.RLock()
	wav = c.cache[text]
	c.mu.RUnlock()
	return text, wav
}

// Size reports how many phrases have cached audio.
func (c *AckCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}
