package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/ppiankov/schemetrust/internal/model"
)

// Verifier runs one verification of a scheme under a caller-chosen run ID
type Verifier interface {
	Verify(ctx context.Context, schemeID, runID string) (*model.RunResult, error)
}

// VerifyJob represents one scheme verification
type VerifyJob struct {
	SchemeID string
	RunID    string
	Verifier Verifier
	index    int
}

// Execute executes the verification job
func (j *VerifyJob) Execute(ctx context.Context) Result {
	run, err := j.Verifier.Verify(ctx, j.SchemeID, j.RunID)
	return &VerifyResult{
		SchemeID: j.SchemeID,
		RunID:    j.RunID,
		Run:      run,
		Error:    err,
		index:    j.index,
	}
}

// VerifyResult represents the result of a verification job
type VerifyResult struct {
	SchemeID string
	RunID    string
	Run      *model.RunResult
	Error    error
	index    int
}

// GetError returns the error from the verification, including a run that reached no source
func (r *VerifyResult) GetError() error {
	if r.Error != nil {
		return r.Error
	}
	if r.Run != nil {
		return r.Run.Err
	}
	return nil
}

// BatchVerifier verifies many schemes concurrently
type BatchVerifier struct {
	verifier    Verifier
	concurrency int
}

// NewBatchVerifier creates a new batch verifier
func NewBatchVerifier(verifier Verifier, concurrency int) *BatchVerifier {
	return &BatchVerifier{
		verifier:    verifier,
		concurrency: concurrency,
	}
}

// VerifyAll verifies every scheme and returns results in input order.
// Duplicate IDs are verified once.
func (b *BatchVerifier) VerifyAll(ctx context.Context, schemeIDs []string) []*VerifyResult {
	ids := dedupe(schemeIDs)
	if len(ids) == 0 {
		return []*VerifyResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	jobs := make([]Job, len(ids))
	for i, id := range ids {
		jobs[i] = &VerifyJob{
			SchemeID: id,
			RunID:    uuid.NewString(),
			Verifier: b.verifier,
			index:    i,
		}
	}

	results := make([]*VerifyResult, len(ids))
	for _, r := range pool.Run(jobs) {
		vr := r.(*VerifyResult)
		results[vr.index] = vr
	}

	// Jobs dropped by cancellation still get a result
	for i, r := range results {
		if r == nil {
			results[i] = &VerifyResult{SchemeID: ids[i], Error: ctx.Err(), index: i}
		}
	}
	return results
}

// VerifyFile reads scheme IDs from a file and verifies them
func (b *BatchVerifier) VerifyFile(ctx context.Context, filePath string) ([]*VerifyResult, error) {
	ids, err := ReadSchemeIDs(filePath)
	if err != nil {
		return nil, fmt.Errorf("read scheme IDs: %w", err)
	}
	return b.VerifyAll(ctx, ids), nil
}

// ReadSchemeIDs reads scheme IDs from a file (one per line)
func ReadSchemeIDs(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var ids []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return dedupe(ids), nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
