package p4

import (
	"bufio"
	"strings"
)

// Record is one tagged-output record: field name to value.
type Record map[string]string

// ParseZtag splits `p4 -ztag` output into records. Records are separated by
// blank lines; each field line starts with "... ". Lines without the prefix
// continue the previous field's value (multi-line descriptions).
func ParseZtag(out string) []Record {
	var (
		records []Record
		cur     Record
		lastKey string
	)
	flush := func() {
		if len(cur) > 0 {
			records = append(records, cur)
		}
		cur = nil
		lastKey = ""
	}

	sc := bufio.NewScanner(strings.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if rest, ok := strings.CutPrefix(line, "... "); ok {
			key, val, _ := strings.Cut(rest, " ")
			if cur == nil {
				cur = Record{}
			} else if _, dup := cur[key]; dup {
				// A repeated key without a blank separator starts a new record.
				flush()
				cur = Record{}
			}
			cur[key] = val
			lastKey = key
			continue
		}
		if line == "" {
			if lastKey == "desc" {
				// Descriptions may contain blank lines; keep them until the
				// next tagged line decides otherwise.
				cur[lastKey] += "\n"
				continue
			}
			flush()
			continue
		}
		if cur != nil && lastKey != "" {
			cur[lastKey] += "\n" + line
		}
	}
	flush()

	for _, r := range records {
		if d, ok := r["desc"]; ok {
			r["desc"] = strings.TrimRight(d, "\n")
		}
	}
	return records
}
