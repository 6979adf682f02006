package suite

import (
	"context"
	"fmt"

	"github.com/steveyegge/mergewatch/internal/functest"
	"github.com/steveyegge/mergewatch/internal/workspace"
)

// SimpleMerge edits a file on Main and expects the change merged to Dev.
type SimpleMerge struct{ mainDev }

func NewSimpleMerge(env functest.Env) functest.Test {
	t := &SimpleMerge{}
	t.Init(env, "SimpleMerge")
	return t
}

func (t *SimpleMerge) Setup(ctx context.Context) error {
	return t.seed(ctx, "test.txt", false, false)
}

func (t *SimpleMerge) Run(ctx context.Context) error {
	_, err := t.editMain(ctx, "test.txt", "Updated content", "")
	return err
}

func (t *SimpleMerge) Verify(ctx context.Context) error {
	if err := t.EnsureNotBlocked(ctx, "Main", "Dev"); err != nil {
		return err
	}
	return t.CheckHeadRevision(ctx, "Dev", "test.txt", 2, "")
}

// StompBinary blocks Main -> Dev on a binary file both sides edited, then
// stomps Dev with Main's revision.
type StompBinary struct{ mainDev }

func NewStompBinary(env functest.Env) functest.Test {
	t := &StompBinary{}
	t.Init(env, "StompBinary")
	return t
}

func (t *StompBinary) Setup(ctx context.Context) error {
	return t.seed(ctx, "fake.uasset", true, true)
}

func (t *StompBinary) Run(ctx context.Context) error {
	_, err := t.editMain(ctx, "fake.uasset", "Main content", "")
	return err
}

func (t *StompBinary) Verify(ctx context.Context) error {
	if err := t.EnsureBlocked(ctx, "Main", "Dev"); err != nil {
		return err
	}
	res, err := t.VerifyAndPerformStomp(ctx, "Main", "Dev", "")
	if err != nil {
		return err
	}
	if !res.Verify.RemainingAllBinary {
		return fmt.Errorf("expected only binary files to remain: %s", res.Verify.Summary())
	}
	if res.Stomp.StatusCode != 200 {
		return fmt.Errorf("stomp returned %d: %s", res.Stomp.StatusCode, res.Stomp.Body)
	}
	if err := t.EnsureNotBlocked(ctx, "Main", "Dev"); err != nil {
		return err
	}
	return t.CheckHeadRevision(ctx, "Dev", "fake.uasset", 3, "")
}

// ShelveConflict blocks Main -> Dev on a text conflict, has the service
// shelve the merge into Dev's workspace, then resolves and submits the
// shelf.
type ShelveConflict struct{ mainDev }

func NewShelveConflict(env functest.Env) functest.Test {
	t := &ShelveConflict{}
	t.Init(env, "ShelveConflict")
	return t
}

func (t *ShelveConflict) Setup(ctx context.Context) error {
	return t.seed(ctx, "conflict.txt", false, true)
}

func (t *ShelveConflict) Run(ctx context.Context) error {
	_, err := t.editMain(ctx, "conflict.txt", "Main content", "")
	return err
}

func (t *ShelveConflict) Verify(ctx context.Context) error {
	if err := t.EnsureBlocked(ctx, "Main", "Dev"); err != nil {
		return err
	}
	shelf, err := t.CreateShelf(ctx, "Main", "Dev")
	if err != nil {
		return err
	}

	dev, err := t.Client("Dev", "", "")
	if err != nil {
		return err
	}
	if err := dev.Unshelve(ctx, shelf); err != nil {
		return err
	}
	if err := dev.Resolve(ctx, shelf, true); err != nil {
		return err
	}
	if err := dev.DeleteShelved(ctx, shelf); err != nil {
		return err
	}
	out, err := dev.Submit(ctx, workspace.Pending(shelf))
	if err != nil {
		return err
	}
	if _, err := workspace.ParseSubmitted(out); err != nil {
		return err
	}

	if err := t.WaitForIdle(ctx, false); err != nil {
		return err
	}
	if err := t.EnsureNotBlocked(ctx, "Main", "Dev"); err != nil {
		return err
	}
	return t.CheckHeadRevision(ctx, "Dev", "conflict.txt", 3, "")
}

// ReconsiderNull submits to Main with a null directive, which the service
// skips, then reconsiders the change towards Dev.
type ReconsiderNull struct {
	mainDev
	skipped int
}

func NewReconsiderNull(env functest.Env) functest.Test {
	t := &ReconsiderNull{}
	t.Init(env, "ReconsiderNull")
	return t
}

func (t *ReconsiderNull) Setup(ctx context.Context) error {
	return t.seed(ctx, "skip.txt", false, false)
}

func (t *ReconsiderNull) Run(ctx context.Context) error {
	cl, err := t.editMain(ctx, "skip.txt", "Skipped content", "null")
	t.skipped = cl
	return err
}

func (t *ReconsiderNull) Verify(ctx context.Context) error {
	if err := t.CheckHeadRevision(ctx, "Dev", "skip.txt", 1, ""); err != nil {
		return err
	}
	if err := t.Reconsider(ctx, "Main", t.skipped, "Dev", ""); err != nil {
		return err
	}
	if err := t.WaitForIdle(ctx, false); err != nil {
		return err
	}
	if err := t.EnsureNotBlocked(ctx, "Main", "Dev"); err != nil {
		return err
	}
	return t.CheckHeadRevision(ctx, "Dev", "skip.txt", 2, "")
}
