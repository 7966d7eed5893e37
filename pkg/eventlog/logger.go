package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/formflow/formflow/internal/model"
	"github.com/formflow/formflow/pkg/errors"
	"github.com/formflow/formflow/pkg/retry"
)

// keyTimeLayout formats event timestamps to the second. Same visit, same
// action, same second is the only collision risk, accepted as out of scope.
const keyTimeLayout = "20060102-150405"

// Logger serializes visit events to JSON and writes each under a
// deterministic key in the object store, partitioned by environment.
// Stateless apart from its configuration.
type Logger struct {
	store Store
	env   string
	retry retry.Policy
}

// NewLogger creates a logger writing to store under the given environment
// prefix (e.g., "prod", "dev").
func NewLogger(store Store, env string) *Logger {
	return &Logger{
		store: store,
		env:   env,
		retry: retry.DefaultPolicy(),
	}
}

// WithRetry overrides the default retry policy for store writes.
func (l *Logger) WithRetry(p retry.Policy) *Logger {
	l.retry = p
	return l
}

// Key builds the deterministic object key for an event:
//
//	{env}/log-{action}-{YYYYMMDD-HHMMSS}-{adcid}-{project}-{ptid}-{visitnum}.json
//
// Path-unsafe characters in the project label are substituted so keys stay
// human-scannable.
func (l *Logger) Key(ev model.VisitEvent) string {
	return fmt.Sprintf("%s/log-%s-%s-%d-%s-%s-%s.json",
		l.env,
		ev.Action,
		ev.Timestamp.UTC().Format(keyTimeLayout),
		ev.ADCID,
		sanitizeLabel(ev.Project),
		ev.PTID,
		ev.VisitNum,
	)
}

// Log validates, serializes, and writes one event. The write is retried on
// transient store errors and the last error re-raised after exhaustion.
func (l *Logger) Log(ctx context.Context, ev model.VisitEvent) error {
	ev, err := model.NewVisitEvent(ev)
	if err != nil {
		return err
	}

	content, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "failed to marshal visit event")
	}

	key := l.Key(ev)
	return l.retry.Do(ctx, "eventlog put", func(ctx context.Context) error {
		return l.store.Put(ctx, key, content)
	})
}

// sanitizeLabel substitutes characters that would break or pollute object
// keys.
func sanitizeLabel(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, ":", "_")
	return s
}
