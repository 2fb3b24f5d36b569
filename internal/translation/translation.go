package translation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/doctranslate-worker/internal/clients"
	"github.com/adverant/nexus/doctranslate-worker/internal/config"
	"github.com/adverant/nexus/doctranslate-worker/internal/logging"
)

// Translator translates one block of text.
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
}

// BatchTranslator translates several independent texts in one round trip,
// returning results in input order.
type BatchTranslator interface {
	Translator
	TranslateBatch(ctx context.Context, texts []string, targetLang string) ([]string, error)
}

// Named is implemented by translators that identify their provider.
type Named interface {
	Name() string
}

// NewFromConfig builds the configured provider client wrapped in a cache.
// rdb may be nil, in which case only the in-process cache is used.
func NewFromConfig(cfg config.TranslatorConfig, rdb redis.Cmdable) (*CachedTranslator, error) {
	retry := clients.DefaultRetryPolicy()
	retry.MaxRetries = cfg.MaxRetries

	var inner BatchTranslator
	switch cfg.Provider {
	case "azure", "":
		c, err := clients.NewAzureTranslatorClient(clients.AzureTranslatorConfig{
			APIKey:         cfg.APIKey,
			Endpoint:       cfg.Endpoint,
			Region:         cfg.Region,
			SourceLanguage: cfg.SourceLanguage,
			Timeout:        cfg.Timeout(),
			Retry:          retry,
		})
		if err != nil {
			return nil, err
		}
		inner = c
	case "deepl":
		c, err := clients.NewDeepLClient(clients.DeepLConfig{
			APIKey:         cfg.APIKey,
			Endpoint:       cfg.Endpoint,
			SourceLanguage: cfg.SourceLanguage,
			Timeout:        cfg.Timeout(),
			Retry:          retry,
		})
		if err != nil {
			return nil, err
		}
		inner = c
	default:
		return nil, fmt.Errorf("unknown translator provider %q", cfg.Provider)
	}

	opts := CacheOptions{
		TTL:      cfg.CacheTTL(),
		Capacity: uint64(cfg.CacheCapacity),
	}
	if cfg.CacheInRedis && rdb != nil {
		opts.Remote = NewRedisStore(rdb, "doctranslate:tx:")
	}
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	return NewCachedTranslator(inner, opts, logging.NewLogger("TranslationCache")), nil
}
