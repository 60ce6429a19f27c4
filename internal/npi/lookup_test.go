package npi_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/availity-rpa/internal/automation"
	"github.com/xkilldash9x/availity-rpa/internal/mocks"
	"github.com/xkilldash9x/availity-rpa/internal/npi"
)

const registryURL = "https://npiregistry.cms.hhs.gov/search"

const resultXPath = "//table[contains(@class, 'table-hover')]//button[@class='btn btn-link']"

func usable(tag, text string) automation.Element {
	return automation.Element{Tag: tag, Text: text, Visible: true, Enabled: true}
}

func newLookup(t *testing.T, d *mocks.FakeDriver) *npi.BrowserLookup {
	t.Helper()
	logger := zaptest.NewLogger(t)
	return npi.NewBrowserLookup(d, registryURL, logger,
		npi.WithWait(50*time.Millisecond),
		npi.WithSettle(0),
		npi.WithResolver(automation.NewResolver(d, logger, automation.WithPollInterval(5*time.Millisecond))),
		npi.WithActuator(automation.NewActuator(d, automation.ZeroDelayPolicy(), logger)),
	)
}

// registryPage lays out the search form; the search click reveals results.
func registryPage(d *mocks.FakeDriver, withResult bool) (first, last automation.Element) {
	top := automation.Top()
	first = d.Add(top, automation.CSS("#firstName"), usable("input", ""))
	last = d.Add(top, automation.CSS("#lastName"), usable("input", ""))
	search := d.Add(top, automation.CSS("[name='search']"), usable("button", "Search"))

	d.OnClick = func(d *mocks.FakeDriver, el automation.Element) {
		if el.Ref != search.Ref || !withResult {
			return
		}
		hit := d.Add(top, automation.XPath(resultXPath), usable("button", " 1234567890 "))
		d.OnClick = func(d *mocks.FakeDriver, el automation.Element) {
			if el.Ref != hit.Ref {
				return
			}
			d.Add(top, automation.XPath("//h1"), usable("h1", "Provider information for 1234567890"))
			d.Add(top, automation.XPath("//h2"), usable("h2", "ANURADHA KOLLIPARA M.D."))
			d.Add(top, automation.CSS("body"), usable("body", "NPI 1234567890 Status: Active Enumeration Date"))
		}
	}
	return first, last
}

func TestBrowserLookup_FindsProvider(t *testing.T) {
	d := mocks.NewFakeDriver()
	first, last := registryPage(d, true)

	p, err := newLookup(t, d).Lookup(context.Background(), npi.Query{FirstName: "ANURADHA", LastName: "KOLLIPARA"})
	require.NoError(t, err)
	assert.Equal(t, npi.Provider{NPI: "1234567890", Name: "ANURADHA KOLLIPARA M.D.", Status: npi.StatusActive}, p)
	assert.Equal(t, []string{registryURL}, d.Navigated())

	got, _ := d.Get(first.Ref)
	assert.Equal(t, "ANURADHA", got.Value)
	got, _ = d.Get(last.Ref)
	assert.Equal(t, "KOLLIPARA", got.Value)
}

func TestBrowserLookup_NoResults(t *testing.T) {
	d := mocks.NewFakeDriver()
	registryPage(d, false)

	_, err := newLookup(t, d).Lookup(context.Background(), npi.Query{FirstName: "NO", LastName: "BODY"})
	assert.ErrorIs(t, err, npi.ErrNoResults)
}

func TestBrowserLookup_RejectsEmptyQuery(t *testing.T) {
	d := mocks.NewFakeDriver()
	_, err := newLookup(t, d).Lookup(context.Background(), npi.Query{FirstName: "ANN"})
	assert.ErrorIs(t, err, npi.ErrInvalidQuery)
	assert.Empty(t, d.Navigated())
}

func TestStatusFromText(t *testing.T) {
	assert.Equal(t, npi.StatusActive, npi.StatusFromText("Status: ACTIVE"))
	assert.Equal(t, npi.StatusInactive, npi.StatusFromText("Status: Inactive since 2019"))
	assert.Equal(t, npi.StatusUnknown, npi.StatusFromText("Enumeration date 2010-01-01"))
}

func TestParseFullName(t *testing.T) {
	q, err := npi.ParseFullName(" KOLLIPARA , ANURADHA ")
	require.NoError(t, err)
	assert.Equal(t, npi.Query{FirstName: "ANURADHA", LastName: "KOLLIPARA"}, q)

	_, err = npi.ParseFullName("ANURADHA KOLLIPARA")
	assert.ErrorIs(t, err, npi.ErrInvalidQuery)
}

func TestService_Validate(t *testing.T) {
	ctx := context.Background()
	q := npi.Query{FirstName: "ANURADHA", LastName: "KOLLIPARA"}

	t.Run("hit is saved and marked PASS", func(t *testing.T) {
		lookup := new(mocks.MockLookup)
		rec := new(mocks.MockProviderRecorder)
		p := npi.Provider{NPI: "1234567890", Name: "ANURADHA KOLLIPARA", Status: npi.StatusActive}
		lookup.On("Lookup", mock.Anything, q).Return(p, nil)
		rec.On("UpsertProvider", mock.Anything, "ANURADHA", "KOLLIPARA", "1234567890", "ANURADHA KOLLIPARA").Return(int64(12), nil)
		rec.On("SetNPIValidationStatus", mock.Anything, "1042", int64(12), npi.ValidationPass).Return(nil)

		res, err := npi.NewService(lookup, rec, zaptest.NewLogger(t)).Validate(ctx, q, "1042")
		require.NoError(t, err)
		assert.Equal(t, npi.ValidationPass, res.Status)
		require.NotNil(t, res.ProviderID)
		assert.Equal(t, int64(12), *res.ProviderID)
		lookup.AssertExpectations(t)
		rec.AssertExpectations(t)
	})

	t.Run("unknown name is a FAIL result", func(t *testing.T) {
		lookup := new(mocks.MockLookup)
		rec := new(mocks.MockProviderRecorder)
		lookup.On("Lookup", mock.Anything, q).Return(npi.Provider{}, npi.ErrNoResults)
		rec.On("SetNPIValidationStatus", mock.Anything, "1042", int64(0), npi.ValidationFail).Return(nil)

		res, err := npi.NewService(lookup, rec, zaptest.NewLogger(t)).Validate(ctx, q, "1042")
		require.NoError(t, err)
		assert.Equal(t, npi.ValidationFail, res.Status)
		assert.Nil(t, res.ProviderID)
		rec.AssertNotCalled(t, "UpsertProvider", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("browser failure is an error", func(t *testing.T) {
		lookup := new(mocks.MockLookup)
		rec := new(mocks.MockProviderRecorder)
		boom := errors.New("chrome crashed")
		lookup.On("Lookup", mock.Anything, q).Return(npi.Provider{}, boom)

		_, err := npi.NewService(lookup, rec, zaptest.NewLogger(t)).Validate(ctx, q, "1042")
		assert.ErrorIs(t, err, boom)
		rec.AssertExpectations(t)
	})
}
