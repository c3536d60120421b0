// internal/reporting/junit.go
package reporting

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/beevik/etree"

	"github.com/xkilldash9x/formpilot/internal/formfill"
)

// JUnitReporter renders batches as JUnit XML so CI systems can chart
// submissions. Each target is a testcase; all batches written before Close
// share one <testsuites> document.
type JUnitReporter struct {
	writer io.WriteCloser
	doc    *etree.Document
	root   *etree.Element
}

func NewJUnitReporter(w io.WriteCloser) *JUnitReporter {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("testsuites")
	root.CreateAttr("name", "formpilot")
	return &JUnitReporter{writer: w, doc: doc, root: root}
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

func (r *JUnitReporter) Write(result *formfill.BatchResult) error {
	if result == nil {
		return errors.New("nil batch result")
	}
	_, failed, skipped := result.Counts()

	suite := r.root.CreateElement("testsuite")
	suite.CreateAttr("name", result.RunID)
	suite.CreateAttr("tests", strconv.Itoa(len(result.Targets)))
	suite.CreateAttr("failures", strconv.Itoa(failed))
	suite.CreateAttr("skipped", strconv.Itoa(skipped))
	suite.CreateAttr("time", seconds(duration(result.StartedAt, result.FinishedAt)))
	if !result.StartedAt.IsZero() {
		suite.CreateAttr("timestamp", result.StartedAt.UTC().Format(time.RFC3339))
	}

	for _, t := range result.Targets {
		tc := suite.CreateElement("testcase")
		tc.CreateAttr("name", t.Target.Identifier)
		tc.CreateAttr("classname", "formpilot."+t.Target.Reference)
		tc.CreateAttr("time", seconds(duration(t.StartedAt, t.FinishedAt)))
		switch t.Status {
		case formfill.TargetFailed:
			f := tc.CreateElement("failure")
			f.CreateAttr("message", errorText(t.Err))
			f.CreateAttr("type", failureType(t.Err))
		case formfill.TargetSkipped:
			tc.CreateElement("skipped")
		}
	}
	return nil
}

func failureType(err error) string {
	var (
		locErr  *formfill.ElementLocatorError
		navErr  *formfill.NavigationError
		sessErr *formfill.SessionError
	)
	switch {
	case errors.As(err, &locErr):
		return "ElementLocatorError"
	case errors.As(err, &navErr):
		return "NavigationError"
	case errors.As(err, &sessErr):
		return "SessionError"
	default:
		return "Error"
	}
}

// Close writes the XML document and closes the writer.
func (r *JUnitReporter) Close() error {
	r.doc.Indent(2)
	_, werr := r.doc.WriteTo(r.writer)
	if werr != nil {
		werr = fmt.Errorf("failed to write junit report: %w", werr)
	}
	return errors.Join(werr, r.writer.Close())
}
