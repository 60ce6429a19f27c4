package classify_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/availity-rpa/internal/automation"
	"github.com/xkilldash9x/availity-rpa/internal/classify"
	"github.com/xkilldash9x/availity-rpa/internal/mocks"
)

func TestClassifyText(t *testing.T) {
	tests := []struct {
		text   string
		status classify.Status
		ok     bool
	}{
		{"Active Coverage", classify.ActiveCoverage, true},
		{"Patient Eligible - benefits available", classify.ActiveCoverage, true},
		{"Member Status Inactive", classify.MemberInactive, true},
		{"Coverage expired on 01/01/2024", classify.MemberInactive, true},
		{"Patient is not eligible for this plan", classify.Invalid, true},
		{"Invalid/Missing Subscriber/Insured ID. Please correct and resubmit.", classify.Invalid, true},
		{"Birth date does not match", classify.Invalid, true},
		{"Loading results", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			v, ok := classify.ClassifyText(tt.text)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.status, v.Status)
			assert.Equal(t, tt.status.Flag(), v.Flag)
			assert.Equal(t, classify.ByText, v.DetectionMethod)
			assert.Equal(t, tt.text, v.Message)
		})
	}
}

func TestClassifyColor(t *testing.T) {
	tests := []struct {
		name   string
		hex    string
		status classify.Status
		ok     bool
	}{
		{"exact blue badge", "#007BFF", classify.ActiveCoverage, true},
		{"near green", "#4CAF5A", classify.ActiveCoverage, true},
		{"bootstrap danger", "#DC3545", classify.MemberInactive, true},
		{"amber", "#FFF2CC", classify.Invalid, true},
		{"grey", "#808080", "", false},
		{"white", "#FFFFFF", classify.Invalid, true},
		{"empty", "", "", false},
		{"garbage", "#GGGGGG", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := classify.ClassifyColor(tt.hex)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.status, v.Status)
				assert.Equal(t, classify.ByColor, v.DetectionMethod)
			}
		})
	}
}

func TestSimilar(t *testing.T) {
	assert.True(t, classify.Similar("#007BFF", "#007BFF", 30))
	assert.True(t, classify.Similar("#0A85FF", "#007BFF", 30), "distance 20")
	assert.False(t, classify.Similar("#1080FF", "#007BFF", 20), "distance 21")
	assert.False(t, classify.Similar("nope", "#007BFF", 30))
}

func TestNormalizeColor(t *testing.T) {
	tests := map[string]string{
		"rgb(0, 123, 255)":       "#007BFF",
		"rgba(212, 237, 218, 1)": "#D4EDDA",
		"rgba(0, 0, 0, 0)":       "",
		"transparent":            "",
		"#ffceaa":                "#FFCEAA",
		"rgb(300, -4, 12.7)":     "#FF000C",
		"":                       "",
		"hsl(0, 0%, 0%)":         "",
		"rgb(1, 2)":              "",
	}
	for in, want := range tests {
		assert.Equal(t, want, classify.NormalizeColor(in), in)
	}
}

func TestClassify_TextWinsOverColor(t *testing.T) {
	v, ok := classify.Classify("Member Inactive", "rgb(0, 123, 255)")
	require.True(t, ok)
	assert.Equal(t, classify.MemberInactive, v.Status)
	assert.Equal(t, 0, v.Flag)
	assert.Equal(t, classify.ByText, v.DetectionMethod)
	assert.Equal(t, "#007BFF", v.BackgroundHex)
	require.NotNil(t, v.Success)
	assert.False(t, *v.Success)
}

func TestClassify_ColorOnly(t *testing.T) {
	v, ok := classify.Classify("Result 1 of 1", "rgb(220, 53, 69)")
	require.True(t, ok)
	assert.Equal(t, classify.MemberInactive, v.Status)
	assert.Equal(t, classify.ByColor, v.DetectionMethod)
	assert.Equal(t, "Result 1 of 1", v.Message)
	assert.Equal(t, "rgb(220, 53, 69)", v.BackgroundColor)
}

func TestStatusFlags(t *testing.T) {
	for s, flag := range map[classify.Status]int{
		classify.ActiveCoverage: 1,
		classify.MemberInactive: 0,
		classify.Invalid:        -1,
		classify.Unknown:        -1,
		classify.NoResponse:     -1,
		classify.Error:          -1,
	} {
		assert.Equal(t, flag, s.Flag(), string(s))
	}
}

func newScanner(t *testing.T, d *mocks.FakeDriver, wait time.Duration) *classify.Scanner {
	t.Helper()
	logger := zaptest.NewLogger(t)
	return classify.NewScanner(d, automation.NewFrameNavigator(d, logger), logger,
		classify.WithWait(wait), classify.WithPollInterval(5*time.Millisecond))
}

func badge(text, bg string) automation.Element {
	return automation.Element{Tag: "SPAN", Text: text, BackgroundColor: bg, Visible: true, Enabled: true}
}

func TestScanner_ActiveCoverageBadge(t *testing.T) {
	d := mocks.NewFakeDriver()
	frames := d.SetFrames(2)
	d.Add(frames[1], automation.CSS(`span[class*="badge"]`), badge("Active Coverage", "rgb(0, 123, 255)"))

	v := newScanner(t, d, time.Second).Scan(context.Background())
	assert.Equal(t, classify.ActiveCoverage, v.Status)
	assert.Equal(t, 1, v.Flag)
	assert.Equal(t, classify.ByText, v.DetectionMethod)
	assert.Equal(t, "iframe_1", v.Location)
	require.NotNil(t, v.Success)
	assert.True(t, *v.Success)
}

func TestScanner_NoResponse(t *testing.T) {
	d := mocks.NewFakeDriver()
	d.SetFrames(2)

	start := time.Now()
	v := newScanner(t, d, 60*time.Millisecond).Scan(context.Background())
	assert.Equal(t, classify.NoResponse, v.Status)
	assert.Equal(t, -1, v.Flag)
	assert.Equal(t, classify.NoDetection, v.DetectionMethod)
	assert.Nil(t, v.Success)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestScanner_UnknownWhenNothingClassifies(t *testing.T) {
	d := mocks.NewFakeDriver()
	d.Add(automation.Top(), automation.CSS(`div[class*="message"]`), badge("Results updated", "rgb(128, 128, 128)"))
	d.Add(automation.Top(), automation.CSS(`div[class*="status"]`), badge("ok", "")) // too short

	v := newScanner(t, d, 30*time.Millisecond).Scan(context.Background())
	assert.Equal(t, classify.Unknown, v.Status)
	assert.Equal(t, -1, v.Flag)
	assert.Equal(t, "Results updated", v.Message)
	assert.Equal(t, "#808080", v.BackgroundHex)
	assert.Equal(t, "main_page", v.Location)
}

func TestScanner_WaitsForLateResponse(t *testing.T) {
	d := mocks.NewFakeDriver()
	d.Add(automation.Top(), automation.CSS(`div[class*="alert"]`), badge("Please wait", ""))
	go func() {
		time.Sleep(20 * time.Millisecond)
		d.Add(automation.Top(), automation.CSS(`div[class*="alert"]`), badge("Member Status Inactive", "rgb(248, 215, 218)"))
	}()

	v := newScanner(t, d, 2*time.Second).Scan(context.Background())
	assert.Equal(t, classify.MemberInactive, v.Status)
	assert.Equal(t, 0, v.Flag)
}

func TestScanner_SelectorOrderAndDedup(t *testing.T) {
	d := mocks.NewFakeDriver()
	el := d.Add(automation.Top(), automation.CSS(`div[class*="alert"]`), badge("Coverage inactive", ""))
	d.Also(el, automation.CSS(`div[class*="coverage"]`))
	d.Add(automation.Top(), automation.CSS(`div[class*="success"]`), badge("Approved", ""))

	cands, err := newScanner(t, d, time.Second).Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, "Coverage inactive", cands[0].Text)
}

func TestScanner_UnreadableFrameSkipped(t *testing.T) {
	d := mocks.NewFakeDriver()
	d.SetFrames(1)
	d.FramesErr = errors.New("target closed")
	d.Add(automation.Top(), automation.CSS(`div[class*="alert"]`), badge("Active Coverage", ""))

	v := newScanner(t, d, time.Second).Scan(context.Background())
	assert.Equal(t, classify.ActiveCoverage, v.Status)
}

func TestScanner_ErrorVerdict(t *testing.T) {
	d := mocks.NewFakeDriver()
	d.QueryErr[`div[class*="alert"]`] = errors.New("cdp: session detached")

	v := newScanner(t, d, 30*time.Millisecond).Scan(context.Background())
	assert.Equal(t, classify.Error, v.Status)
	assert.Equal(t, -1, v.Flag)
	assert.Contains(t, v.Message, "session detached")
}

func TestScanner_CancelledIsError(t *testing.T) {
	d := mocks.NewFakeDriver()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	v := newScanner(t, d, time.Second).Scan(ctx)
	assert.Equal(t, classify.Error, v.Status)
	assert.Equal(t, -1, v.Flag)
}
