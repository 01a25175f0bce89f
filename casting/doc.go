// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package casting records votes exactly once per voter and election.

# Single Votes

Cast checks, in order: authentication, request shape, eligibility, election
status and voting window, a prior vote, and the candidate. The vote is then
sealed under the active election key and written together with its
vote_audit row in one transaction:

	rcpt, err := svc.Cast(ctx, casting.CastRequest{
		Authenticated: true,
		VoterID:       voterID,
		ElectionID:    electionID,
		CandidateID:   candidateID,
		PollingUnitID: "pu-7",
		Channel:       models.ChannelWeb,
	})

The UNIQUE (voter_id, election_id) constraint is the final arbiter. Two
concurrent casts for the same voter yield one receipt and one AlreadyVoted.

Every call emits exactly one audit event, success or failure. Audit failures
never change the outcome.

# Offline Batches

CastOfflineBatch takes ballots sealed at a polling unit plus custodian
shares. The key is reconstructed first; too few shares reject the batch
before anything is decrypted. Each decrypted ballot is cast with the fields
it was sealed with, and its sealed payload is stored as submitted. Web and
USSD ballots are always sealed by the server. Each ballot gets its own outcome:

	resp, err := svc.CastOfflineBatch(ctx, casting.OfflineBatch{...})
	// resp.Processed, resp.Failed, resp.Outcomes[i].Code

# Counting

MarkCounted flips the counted flag on recorded votes. It is the only update
ever applied to a cast vote.
*/
package casting
