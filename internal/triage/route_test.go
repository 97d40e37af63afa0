package triage

import (
	"testing"

	"github.com/cexll/jiralabel/internal/labeling"
	"github.com/cexll/jiralabel/internal/labels"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoute(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		total   string
		want    Route
		wantErr bool
	}{
		{name: "with count", key: "ABC-2", total: "4", want: Route{IssueKey: "ABC-2", TotalIssues: 4}},
		{name: "zero count", key: "ABC-2", total: "0", want: Route{IssueKey: "ABC-2", TotalIssues: 0}},
		{name: "missing count", key: "ABC-2", want: Route{IssueKey: "ABC-2", TotalIssues: labeling.UnknownTotal}},
		{name: "malformed count", key: "ABC-2", total: "many", want: Route{IssueKey: "ABC-2", TotalIssues: labeling.UnknownTotal}},
		{name: "negative count", key: "ABC-2", total: "-3", want: Route{IssueKey: "ABC-2", TotalIssues: labeling.UnknownTotal}},
		{name: "missing key", key: " ", total: "4", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRoute(tt.key, tt.total)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMissingIssueKey)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRoutePath(t *testing.T) {
	assert.Equal(t, "/issue/ABC-2?total_issues=4", Route{IssueKey: "ABC-2", TotalIssues: 4}.Path())
	assert.Equal(t, "/issue/ABC-2", Route{IssueKey: "ABC-2", TotalIssues: labeling.UnknownTotal}.Path())
	assert.Equal(t, "/issue/A%2FB", Route{IssueKey: "A/B", TotalIssues: labeling.UnknownTotal}.Path())

	r, err := ParseRoute("ABC-7", "12")
	require.NoError(t, err)
	assert.Equal(t, "/issue/ABC-7?total_issues=12", r.Path())
}

func TestButtonsFor(t *testing.T) {
	hl := newHighlighter(t)
	batch := batchFor("ABC-1", "Configure the YANG models", "", 3)
	batch.Issues = append(batch.Issues, labeling.Issue{Key: "ABC-0", ResearchProject: string(labels.Intense), LinkType: labeling.LinkParent})
	batch.SortedProjects = []labeling.ProjectHours{{Project: string(labels.Shinka), Hours: 3}}

	buttons := ButtonsFor(batch, labels.Shinka, hl)
	require.Len(t, buttons, len(labels.All()))

	netfab := findButton(buttons, labels.NetFab)
	assert.True(t, netfab.Suggested)
	assert.False(t, netfab.NoSignal)

	shinka := findButton(buttons, labels.Shinka)
	assert.True(t, shinka.Suggested)
	assert.True(t, shinka.Selected)

	assert.True(t, findButton(buttons, labels.Intense).Suggested)

	saspit := findButton(buttons, labels.Saspit)
	assert.False(t, saspit.Suggested)
	assert.True(t, saspit.NoSignal)

	na := findButton(buttons, labels.NotAssignable)
	assert.True(t, na.Sentinel)
	assert.False(t, na.NoSignal)
}

func TestButtonsFor_NoHighlighter(t *testing.T) {
	batch := batchFor("ABC-1", "NETCONF", "", 1)
	for _, b := range ButtonsFor(batch, "", nil) {
		assert.False(t, b.Suggested, b.Label)
	}
}
