package replay

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fd1az/multichain-arb/business/market/domain"
)

type sink struct {
	features  []domain.Feature
	malformed int
}

func (s *sink) Ingest(_ context.Context, _ string, f domain.Feature) { s.features = append(s.features, f) }
func (s *sink) Malformed(context.Context, string, error)              { s.malformed++ }

type stringOpener string

func (o stringOpener) Open(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(string(o))), nil
}
func (o stringOpener) Describe() string { return "inline" }

const recording = `{"id":"a","chain_id":1,"block_number":1,"timestamp_ms":1700000000000,"type":"gas","gas":{"price_gwei":"10"}}

{"id":"b","chain_id":1,"block_number":2,"timestamp_ms":1700000012000,"type":"gas","gas":{"price_gwei":"11"}}
garbage
{"id":"c","chain_id":1,"block_number":3,"timestamp_ms":1700000024000,"type":"gas","gas":{"price_gwei":"12"}}
`

func TestSource_PacesBySpeed(t *testing.T) {
	src := New(stringOpener(recording), Options{Speed: 4})
	var slept []time.Duration
	src.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	s := &sink{}
	if err := src.Run(context.Background(), s); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(s.features) != 3 || s.malformed != 1 {
		t.Fatalf("features=%d malformed=%d", len(s.features), s.malformed)
	}
	if len(slept) != 2 || slept[0] != 3*time.Second || slept[1] != 3*time.Second {
		t.Errorf("slept = %v, want [3s 3s]", slept)
	}
}

func TestSource_Restamp(t *testing.T) {
	wall := time.Unix(1_800_000_000, 0)
	src := New(stringOpener(recording), Options{Restamp: true})
	src.now = func() time.Time { return wall }

	s := &sink{}
	if err := src.Run(context.Background(), s); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, f := range s.features {
		if !f.Timestamp.Equal(wall) {
			t.Errorf("%s timestamp = %s", f.ID, f.Timestamp)
		}
	}
}

func TestFile_Open(t *testing.T) {
	path := filepath.Join(t.TempDir(), "features.jsonl")
	if err := os.WriteFile(path, []byte(recording), 0o600); err != nil {
		t.Fatal(err)
	}

	s := &sink{}
	if err := New(File(path), Options{}).Run(context.Background(), s); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(s.features) != 3 {
		t.Errorf("features = %d", len(s.features))
	}

	if _, err := File(filepath.Join(t.TempDir(), "missing")).Open(context.Background()); err == nil {
		t.Error("expected error for missing file")
	}
}
