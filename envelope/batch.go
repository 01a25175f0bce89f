// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package envelope

import (
	"context"
	"crypto/rsa"
	"sort"
	"sync"

	"github.com/danielhkuo/ballotbox/models"
	"golang.org/x/sync/errgroup"
)

// DecryptedVote pairs a recovered ballot with its position in the input.
type DecryptedVote struct {
	Index  int
	Ballot models.Ballot
	Vote   models.EncryptedVote
}

// DecryptFailure records why the ballot at Index could not be opened.
type DecryptFailure struct {
	Index int
	Err   error
}

// BatchResult holds both halves of a batch decryption, each sorted by Index.
// Err is the context error if the batch was cut short by cancellation.
type BatchResult struct {
	Decrypted []DecryptedVote
	Failures  []DecryptFailure
	Err       error
}

// BatchDecryptVotes opens every vote with priv using up to workers goroutines.
// A failure on one vote never stops the others. If ctx is cancelled, votes
// not yet started are reported as failures with ctx.Err().
func BatchDecryptVotes(ctx context.Context, votes []models.EncryptedVote, priv *rsa.PrivateKey, workers int) BatchResult {
	if workers < 1 {
		workers = 1
	}

	var (
		mu     sync.Mutex
		result BatchResult
		pool   errgroup.Group
	)
	pool.SetLimit(workers)

	record := func(i int, ev models.EncryptedVote, ballot *models.Ballot, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			result.Failures = append(result.Failures, DecryptFailure{Index: i, Err: err})
			return
		}
		result.Decrypted = append(result.Decrypted, DecryptedVote{Index: i, Ballot: *ballot, Vote: ev})
	}

	for i, ev := range votes {
		pool.Go(func() error {
			if err := ctx.Err(); err != nil {
				record(i, ev, nil, err)
				return err
			}
			ballot, err := DecryptVote(ev, priv)
			record(i, ev, ballot, err)
			return nil
		})
	}
	result.Err = pool.Wait()

	sort.Slice(result.Decrypted, func(i, j int) bool { return result.Decrypted[i].Index < result.Decrypted[j].Index })
	sort.Slice(result.Failures, func(i, j int) bool { return result.Failures[i].Index < result.Failures[j].Index })

	return result
}
