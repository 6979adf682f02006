package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// CommandPrefix introduces an inline merge-service directive in a change
// description.
const CommandPrefix = "#robomerge "

// SubmitDescribed submits the default changelist and parses the new change
// number from the confirmation.
func SubmitDescribed(ctx context.Context, c *Client, description string) (int, error) {
	out, err := c.Submit(ctx, Describe(description))
	if err != nil {
		return 0, err
	}
	return ParseSubmitted(out)
}

// AddFile writes content into the workspace and opens it for add.
func AddFile(ctx context.Context, c *Client, name, content string, binary bool) error {
	if err := writeFile(c.Path(name), content); err != nil {
		return err
	}
	return c.Add(ctx, name, binary)
}

// ReadFile reads a file from the workspace on local disk.
func ReadFile(c *Client, name string) (string, error) {
	data, err := os.ReadFile(c.Path(name))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return string(data), nil
}

// EditFile opens a file for edit and replaces its content.
func EditFile(ctx context.Context, c *Client, name, content string) error {
	if err := c.Edit(ctx, name); err != nil {
		return err
	}
	return writeFile(c.Path(name), content)
}

// AddFileAndSubmit adds a new file and submits it.
func AddFileAndSubmit(ctx context.Context, c *Client, name, content string, binary bool) (int, error) {
	if err := AddFile(ctx, c, name, content, binary); err != nil {
		return 0, err
	}
	return SubmitDescribed(ctx, c, fmt.Sprintf("Adding file %s", name))
}

// EditFileAndSubmit edits a file and submits it. A non-empty command is
// appended to the description as a merge-service directive.
func EditFileAndSubmit(ctx context.Context, c *Client, name, content, command string) (int, error) {
	if err := EditFile(ctx, c, name, content); err != nil {
		return 0, err
	}
	return SubmitDescribed(ctx, c, EditDescription(name, command))
}

// EditDescription builds the change description EditFileAndSubmit uses.
func EditDescription(name, command string) string {
	desc := fmt.Sprintf("Edited file '%s'", name)
	if command != "" {
		desc += "\n" + CommandPrefix + command
	}
	return desc
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	// Opened-for-edit files may still be read-only on disk (noallwrite).
	if info, err := os.Stat(path); err == nil && info.Mode().Perm()&0o200 == 0 {
		if err := os.Chmod(path, info.Mode().Perm()|0o200); err != nil {
			return fmt.Errorf("chmod %s: %w", path, err)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
