package functest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/mergewatch/internal/branchstate"
	"github.com/steveyegge/mergewatch/internal/logging"
	"github.com/steveyegge/mergewatch/internal/notification"
	"github.com/steveyegge/mergewatch/internal/rmapi"
	"github.com/steveyegge/mergewatch/internal/scenario"
)

var (
	// ErrEdgeNotBlocked is returned before any request is made when an
	// operation needs a blocked edge.
	ErrEdgeNotBlocked = errors.New("edge must be blocked")
	// ErrInvalidStomp is returned when the service rejects a stomp
	// verification.
	ErrInvalidStomp = errors.New("stomp verify returned unexpected values")
)

// StompResult pairs a stomp verification with the stomp it allowed.
type StompResult struct {
	Verify *rmapi.StompVerification
	Stomp  *rmapi.OpResult
}

func conflictCL(source, target string, edge *branchstate.EdgeState, op string) (int, error) {
	cl, ok := edge.ConflictCL()
	if !ok {
		return 0, fmt.Errorf("%s: %w to %s", scenario.Edge{Source: source, Target: target}, ErrEdgeNotBlocked, op)
	}
	return cl, nil
}

// VerifyStomp asks whether the conflict on edge may be stomped.
func (b *Base) VerifyStomp(ctx context.Context, source, target string, edge *branchstate.EdgeState) (*rmapi.StompVerification, error) {
	cl, err := conflictCL(source, target, edge, "stomp")
	if err != nil {
		return nil, err
	}
	v, err := b.API.VerifyStomp(ctx, b.Bot, b.FullBranchName(source), b.FullBranchName(target), cl)
	if err != nil {
		b.Log.Error(err.Error())
		return nil, fmt.Errorf("verifying stomp of CL#%d: %w", cl, err)
	}
	return v, nil
}

// PerformStomp stomps the conflict on edge. Any accepted status is returned
// for the caller to judge.
func (b *Base) PerformStomp(ctx context.Context, source, target string, edge *branchstate.EdgeState) (*rmapi.OpResult, error) {
	cl, err := conflictCL(source, target, edge, "stomp")
	if err != nil {
		return nil, err
	}
	res, err := b.API.PerformStomp(ctx, b.Bot, b.FullBranchName(source), b.FullBranchName(target), cl)
	if err != nil {
		b.Log.Error(err.Error())
		return nil, fmt.Errorf("performing stomp of CL#%d: %w", cl, err)
	}
	return res, nil
}

// VerifyAndPerformStomp verifies the stomp of the conflict on source ->
// target while checking the blockage was announced on the bot's channel and
// extraChannel, then stomps and waits for the service to settle.
func (b *Base) VerifyAndPerformStomp(ctx context.Context, source, target, extraChannel string) (*StompResult, error) {
	edge, err := b.EdgeState(ctx, source, target)
	if err != nil {
		return nil, err
	}
	cl, err := conflictCL(source, target, edge, "stomp")
	if err != nil {
		return nil, err
	}

	channels := []string{notification.DefaultChannel(b.Bot)}
	if extraChannel != "" {
		channels = append(channels, extraChannel)
	}

	b.Log.Info(fmt.Sprintf("Stomp %s @ CL#%d", scenario.Edge{Source: source, Target: target}, cl))
	var verify *rmapi.StompVerification
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		verify, err = b.VerifyStomp(gctx, source, target, edge)
		return err
	})
	g.Go(func() error {
		b.Log.Info(fmt.Sprintf("Ensuring message sent to %s for CL#%d", strings.Join(channels, " and "), cl))
		return b.Notify.ExpectPosted(gctx, cl, channels...)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if !verify.ValidRequest {
		b.Log.Warn(verify.Summary())
		return nil, ErrInvalidStomp
	}

	stomp, err := b.PerformStomp(ctx, source, target, edge)
	if err != nil {
		return nil, err
	}
	b.Log.Log(ctx, logging.LevelVerbose, "Waiting for merge service to process stomp")
	if err := b.WaitForIdle(ctx, false); err != nil {
		return nil, err
	}
	return &StompResult{Verify: verify, Stomp: stomp}, nil
}

// Reconsider re-runs cl on source's node, or only towards target when it
// is non-empty. A non-empty command replaces the change's own directive.
func (b *Base) Reconsider(ctx context.Context, source string, cl int, target, command string) error {
	if target != "" {
		target = b.FullBranchName(target)
	}
	if err := b.API.Reconsider(ctx, b.Bot, b.FullBranchName(source), cl, target, command); err != nil {
		return fmt.Errorf("reconsider error: %w", err)
	}
	return nil
}

// CreateShelf has the service shelve the conflicted merge on source ->
// target into target's DefaultUser workspace and returns the shelved
// change once the service has settled.
func (b *Base) CreateShelf(ctx context.Context, source, target string) (int, error) {
	edge, err := b.EdgeState(ctx, source, target)
	if err != nil {
		return 0, err
	}
	cl, err := conflictCL(source, target, edge, "create shelf")
	if err != nil {
		b.Log.Error("Failed to create shelf")
		return 0, err
	}

	b.Log.Info(fmt.Sprintf("Create shelf for %s @%d", scenario.Edge{Source: source, Target: target}, cl))
	client, err := b.Client(target, DefaultUser, "")
	if err != nil {
		return 0, err
	}
	if err := b.API.CreateShelf(ctx, b.Bot, b.FullBranchName(source), b.FullBranchName(target), client.Workspace, cl); err != nil {
		return 0, err
	}
	if err := b.WaitForIdle(ctx, false); err != nil {
		return 0, err
	}

	pending, err := client.Changes(ctx, 1, true)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, fmt.Errorf("no pending change in %s after create_shelf", client.Workspace)
	}
	return pending[0].Change, nil
}
