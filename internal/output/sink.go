package output

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"sonicwall-to-mx/internal/engine"
	"sonicwall-to-mx/internal/model"
)

// Artifact file names, written into the output directory.
const (
	UnprocessedObjectsFile = "unprocessed_objects.txt"
	UnprocessedRulesFile   = "unprocessed_rules.txt"
	ZoneMatrixFile         = "zone_default_traffic_map.csv"
	RulesFile              = "translated_rules.json"
)

const matrixCorner = `Source Zone \ Destination Zone`

// Sink writes the artifacts of one run.
type Sink struct {
	Dir string
	now func() time.Time
}

func NewSink(dir string) *Sink {
	return &Sink{Dir: dir, now: time.Now}
}

// Write creates every artifact. The zone matrix is written even when
// nothing was translated.
func (s *Sink) Write(res *engine.Result) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	steps := []struct {
		name  string
		write func(io.Writer) error
	}{
		{UnprocessedObjectsFile, func(w io.Writer) error { return WriteUnprocessedObjects(w, res.UnprocessedObjects()) }},
		{UnprocessedRulesFile, func(w io.Writer) error { return WriteUnprocessedRules(w, res.UnprocessedRules()) }},
		{ZoneMatrixFile, func(w io.Writer) error { return WriteZoneMatrix(w, res.Matrix) }},
		{RulesFile, func(w io.Writer) error { return WriteDocument(w, NewDocument(res, s.now())) }},
	}
	for _, step := range steps {
		path := filepath.Join(s.Dir, step.name)
		if err := writeFile(path, step.write); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		slog.Info("artifact written", "path", path)
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if err := write(bw); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteUnprocessedObjects writes one entry per object:
//
//	<name> (group "<group>")
//		- Reason: <reason>
//
// The group part is left out for objects that failed on their own.
func WriteUnprocessedObjects(w io.Writer, objs []model.UnprocessedObject) error {
	for _, o := range objs {
		head := o.Name
		if o.Group != "" {
			head = fmt.Sprintf("%s (group %q)", o.Name, o.Group)
		}
		if _, err := fmt.Fprintf(w, "%s\n\t- Reason: %s\n", head, o.Reason); err != nil {
			return err
		}
	}
	return nil
}

// WriteUnprocessedRules writes "<rule text> -> <reason>" per line.
func WriteUnprocessedRules(w io.Writer, rules []model.UnprocessedRule) error {
	for _, r := range rules {
		if _, err := fmt.Fprintf(w, "%s -> %s\n", r.Text, r.Reason); err != nil {
			return err
		}
	}
	return nil
}

// WriteZoneMatrix writes the default action table with one row per source
// zone and one column per destination zone. The diagonal is blank.
func WriteZoneMatrix(w io.Writer, m *engine.Matrix) error {
	zones := m.Zones()
	cw := csv.NewWriter(w)

	header := make([]string, 0, len(zones)+1)
	header = append(header, matrixCorner)
	for _, z := range zones {
		header = append(header, z.Name)
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, src := range zones {
		row := make([]string, 0, len(zones)+1)
		row = append(row, src.Name)
		for _, dst := range zones {
			action, ok := m.Action(src.Name, dst.Name)
			row = append(row, cell(action, ok))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func cell(action model.Action, ok bool) string {
	switch {
	case !ok:
		return ""
	case action == model.Deny:
		return "Deny"
	default:
		return "Allow"
	}
}
