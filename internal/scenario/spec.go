// Package scenario builds the fixtures a functional test declares: Perforce
// depot, stream and client specs, branch definitions for the merge service,
// the directed graph those definitions describe and the bot's branch-map
// document.
package scenario

import (
	"strings"
)

// Field is one "Key: value" entry of a Perforce spec form.
type Field struct {
	Key   string
	Value string
}

// SpecFormat renders fields as "Key: value\n" blocks separated by blank lines.
func SpecFormat(fields ...Field) string {
	blocks := make([]string, len(fields))
	for i, f := range fields {
		blocks[i] = f.Key + ": " + f.Value + "\n"
	}
	return strings.Join(blocks, "\n")
}

// ClientDefaults are the fixed fields of every test workspace.
func ClientDefaults() []Field {
	return []Field{
		{"Description", "Unit test workspace."},
		{"Options", "noallwrite noclobber nocompress unlocked nomodtime normdir"},
		{"SubmitOptions", "submitunchanged"},
		{"LineEnd", "local"},
	}
}

// ClientSpec renders a stream workspace spec mapping the whole stream.
func ClientSpec(workspace, user, root, stream string) string {
	return SpecFormat(append(ClientDefaults(),
		Field{"Client", workspace},
		Field{"Owner", user},
		Field{"Root", root},
		Field{"Stream", stream},
		Field{"View", "\n\t" + stream + "/... //" + workspace + "/..."},
	)...)
}
