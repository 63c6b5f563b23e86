package report

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/delimatsuo/headhunter-sub003/internal/isolation"
)

// JUnit XML output for CI dashboards that cannot ingest the JSON report.
// Each verdict criterion and each isolation check becomes a test case.

type junitTestSuites struct {
	XMLName  xml.Name         `xml:"testsuites"`
	Name     string           `xml:"name,attr"`
	Tests    int              `xml:"tests,attr"`
	Failures int              `xml:"failures,attr"`
	Suites   []junitTestSuite `xml:"testsuite"`
}

type junitTestSuite struct {
	XMLName  xml.Name        `xml:"testsuite"`
	Name     string          `xml:"name,attr"`
	Tests    int             `xml:"tests,attr"`
	Failures int             `xml:"failures,attr"`
	Skipped  int             `xml:"skipped,attr"`
	Cases    []junitTestCase `xml:"testcase"`
}

type junitTestCase struct {
	XMLName   xml.Name      `xml:"testcase"`
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
	Skipped   *junitSkipped `xml:"skipped,omitempty"`
}

type junitFailure struct {
	XMLName xml.Name `xml:"failure"`
	Message string   `xml:"message,attr"`
	Content string   `xml:",chardata"`
}

type junitSkipped struct {
	XMLName xml.Name `xml:"skipped"`
	Message string   `xml:"message,attr"`
}

// WriteJUnit renders the report as JUnit XML at path.
func WriteJUnit(path string, r *RunReport) error {
	suites := convertToJUnit(r)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	data, err := xml.MarshalIndent(suites, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JUnit XML: %w", err)
	}
	out := append([]byte(xml.Header), data...)
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write JUnit XML file: %w", err)
	}
	return nil
}

func convertToJUnit(r *RunReport) *junitTestSuites {
	slaSuite := junitTestSuite{Name: "sla"}
	for _, name := range sortedCriteria(r.Verdict) {
		tc := junitTestCase{Name: name, ClassName: "sla"}
		if !r.Verdict[name] {
			tc.Failure = &junitFailure{Message: "criterion failed"}
			slaSuite.Failures++
		}
		slaSuite.Cases = append(slaSuite.Cases, tc)
		slaSuite.Tests++
	}

	suites := []junitTestSuite{slaSuite}
	if r.Isolation != nil {
		isoSuite := junitTestSuite{Name: "tenant-isolation"}
		for _, check := range r.Isolation.Checks {
			tc := junitTestCase{
				Name:      fmt.Sprintf("%s/%s", check.Tenant, check.Check),
				ClassName: "tenant-isolation",
			}
			switch check.Status {
			case isolation.StatusFail:
				tc.Failure = &junitFailure{Message: check.Reason, Content: check.Reason}
				isoSuite.Failures++
			case isolation.StatusSkip:
				tc.Skipped = &junitSkipped{Message: check.Reason}
				isoSuite.Skipped++
			}
			isoSuite.Cases = append(isoSuite.Cases, tc)
			isoSuite.Tests++
		}
		suites = append(suites, isoSuite)
	}

	total := &junitTestSuites{Name: "headhunter-validation"}
	for _, s := range suites {
		total.Suites = append(total.Suites, s)
		total.Tests += s.Tests
		total.Failures += s.Failures
	}
	return total
}

func sortedCriteria(verdict map[string]bool) []string {
	names := make([]string, 0, len(verdict))
	for name := range verdict {
		names = append(names, name)
	}
	// Deterministic output keeps CI diffs readable.
	sort.Strings(names)
	return names
}
