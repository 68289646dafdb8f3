package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"campus-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// QuizLoader fetches quiz definitions from the backing store.
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizRepository caches quiz definitions in Redis and falls back to a loader on cache miss.
// Definitions are stored as JSON: SET quiz:{quizID}:definition {json} EX ttl
// Invalidate bumps quiz:{quizID}:version; a fill only lands if the version it read is still current.
type QuizRepository struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	sf     singleflight.Group
	rndMu  sync.Mutex
	rnd    *rand.Rand
}

func NewQuizRepository(client *redis.Client, loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := r.cached(ctx, quizID); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if quiz, ok := r.cached(ctx, quizID); ok {
			return quiz, nil
		}

		version, err := r.version(ctx, r.client, quizID)
		if err != nil {
			log.Warn().Err(err).Str("quizId", quizID).Msg("read quiz cache version")
		}

		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}

		ttl := r.ttlWithJitter()
		if ttl > 0 {
			payload, err := json.Marshal(quiz)
			if err == nil {
				err = r.fill(ctx, quizID, version, payload, ttl)
			}
			if err != nil && !errors.Is(err, errStaleFill) {
				// Serving from the loader still works; the next read retries the fill.
				log.Warn().Err(err).Str("quizId", quizID).Msg("cache quiz definition")
			}
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

// Invalidate deletes the cached definition after an edit.
func (r *QuizRepository) Invalidate(ctx context.Context, quizID string) {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, r.versionKey(quizID))
		pipe.Del(ctx, r.definitionKey(quizID))
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("quizId", quizID).Msg("invalidate quiz definition")
	}
	r.sf.Forget(quizID)
}

func (r *QuizRepository) cached(ctx context.Context, quizID string) (domain.Quiz, bool) {
	payload, err := r.client.Get(ctx, r.definitionKey(quizID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("quizId", quizID).Msg("read cached quiz definition")
		}
		return domain.Quiz{}, false
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(payload, &quiz); err != nil {
		return domain.Quiz{}, false
	}
	return quiz, true
}

var errStaleFill = errors.New("quiz invalidated during load")

// fill writes the definition only while the version key still holds version.
func (r *QuizRepository) fill(ctx context.Context, quizID string, version int64, payload []byte, ttl time.Duration) error {
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := r.version(ctx, tx, quizID)
		if err != nil {
			return err
		}
		if current != version {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.definitionKey(quizID), payload, ttl)
			return nil
		})
		return err
	}, r.versionKey(quizID))
	if errors.Is(err, redis.TxFailedErr) {
		return errStaleFill
	}
	return err
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *QuizRepository) version(ctx context.Context, c stringGetter, quizID string) (int64, error) {
	v, err := c.Get(ctx, r.versionKey(quizID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func (r *QuizRepository) versionKey(quizID string) string {
	return "quiz:" + quizID + ":version"
}

func (r *QuizRepository) definitionKey(quizID string) string {
	return "quiz:" + quizID + ":definition"
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
