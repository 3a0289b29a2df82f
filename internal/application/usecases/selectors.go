package usecases

import (
	"strings"

	"github.com/example/recreserve/internal/browser"
)

// Selectors are the booking site's element locators. They track the site's
// markup, not any rule of the reservation flow.
type Selectors struct {
	ReservationCount browser.Selector
	PrimaryButton    browser.Selector
	DatePicker       browser.Selector
	Telephone        browser.Selector
	Email            browser.Selector
	Name             browser.Selector
	Code             browser.Selector
	RetryPrompt      browser.Selector
}

func DefaultSelectors() Selectors {
	return Selectors{
		ReservationCount: browser.ID("reservationCount"),
		PrimaryButton:    browser.CSS(".mdc-button__ripple"),
		DatePicker:       browser.CSS(".date-text"),
		Telephone:        browser.ID("telephone"),
		Email:            browser.ID("email"),
		Name:             browser.XPath("//input[starts-with(@id, 'field')]"),
		Code:             browser.ID("code"),
		RetryPrompt:      browser.XPath("//span[text()='Retry']"),
	}
}

// ActivityButton matches the activity tile whose text is exactly label.
func ActivityButton(label string) browser.Selector {
	return browser.XPath("//div[text()=" + xpathLiteral(label) + "]")
}

// TimeSlot matches the time button whose label contains start.
func TimeSlot(start string) browser.Selector {
	return browser.XPath("//a[contains(span[@class='mdc-button__label available-time'], " + xpathLiteral(start) + ")]")
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	return "concat('" + strings.Join(parts, `', "'", '`) + "')"
}
