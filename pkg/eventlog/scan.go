package eventlog

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/formflow/formflow/internal/model"
	"github.com/formflow/formflow/pkg/errors"
)

// KeyScanner lists event object keys under a prefix. The log itself stays
// write-only; scanning is a separate, read-side concern for audit tooling.
type KeyScanner interface {
	ScanKeys(ctx context.Context, prefix string) ([]string, error)
}

// ScanKeys returns the in-memory store's keys under prefix, sorted.
func (s *MemoryStore) ScanKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for _, k := range s.Keys() {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// ScanKeys lists event object keys in the bucket under prefix, paginated.
func (s *S3Store) ScanKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.Bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		pageCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		page, err := paginator.NextPage(pageCtx)
		cancel()
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeReadFailed, "failed to list event log objects").
				WithContext("bucket", s.cfg.Bucket).
				WithContext("prefix", prefix)
		}

		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
	}

	return keys, nil
}

// ParsedKey is the event identity recovered from an object key, without
// fetching the object body.
type ParsedKey struct {
	Key       string
	Env       string
	Action    model.Action
	Timestamp time.Time
	ADCID     int
	Project   string
	PTID      string
	VisitNum  string
}

// eventKey matches the log key format up to the variable-length tail. The
// action alternation is anchored to the known set so the hyphen inside
// "pass-qc"/"not-pass-qc" cannot bleed into the timestamp.
var eventKey = regexp.MustCompile(`^([^/]+)/log-(submit|delete|pass-qc|not-pass-qc)-(\d{8}-\d{6})-(\d+)-(.+)\.json$`)

// ParseKey recovers the event identity from an object key. The tail is
// split from the right: visit number, then ptid, then everything remaining
// is the project label (labels may contain hyphens, ptids and visit numbers
// do not). Returns false for keys that do not follow the log format.
func ParseKey(key string) (ParsedKey, bool) {
	m := eventKey.FindStringSubmatch(key)
	if m == nil {
		return ParsedKey{}, false
	}

	ts, err := time.Parse(keyTimeLayout, m[3])
	if err != nil {
		return ParsedKey{}, false
	}

	adcid, err := strconv.Atoi(m[4])
	if err != nil {
		return ParsedKey{}, false
	}

	tail := m[5]
	last := strings.LastIndex(tail, "-")
	if last <= 0 {
		return ParsedKey{}, false
	}
	visitnum := tail[last+1:]
	rest := tail[:last]

	mid := strings.LastIndex(rest, "-")
	if mid <= 0 {
		return ParsedKey{}, false
	}

	return ParsedKey{
		Key:       key,
		Env:       m[1],
		Action:    model.Action(m[2]),
		Timestamp: ts,
		ADCID:     adcid,
		Project:   rest[:mid],
		PTID:      rest[mid+1:],
		VisitNum:  visitnum,
	}, true
}

// ScanFilter narrows a log scan. Zero values match everything.
type ScanFilter struct {
	Action model.Action
	PTID   string
	Since  time.Time
}

// Scanner reads event identities back out of the log for audit tooling.
type Scanner struct {
	store KeyScanner
	env   string
}

// NewScanner creates a scanner over one environment partition of the log.
func NewScanner(store KeyScanner, env string) *Scanner {
	return &Scanner{store: store, env: env}
}

// Scan lists the environment's event keys and returns the parsed identities
// matching the filter, in key order. Keys that do not parse are skipped:
// foreign objects in the bucket are not the scanner's concern.
func (s *Scanner) Scan(ctx context.Context, filter ScanFilter) ([]ParsedKey, error) {
	prefix := s.env + "/log-"
	if filter.Action != "" {
		prefix += string(filter.Action) + "-"
	}

	keys, err := s.store.ScanKeys(ctx, prefix)
	if err != nil {
		return nil, err
	}

	var events []ParsedKey
	for _, key := range keys {
		parsed, ok := ParseKey(key)
		if !ok {
			continue
		}
		if filter.Action != "" && parsed.Action != filter.Action {
			continue
		}
		if filter.PTID != "" && parsed.PTID != filter.PTID {
			continue
		}
		if !filter.Since.IsZero() && parsed.Timestamp.Before(filter.Since) {
			continue
		}
		events = append(events, parsed)
	}
	return events, nil
}
