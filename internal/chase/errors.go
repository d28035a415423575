package chase

import "errors"

var (
	// ErrLoginFieldsMissing indicates the logon form never rendered.
	ErrLoginFieldsMissing = errors.New("could not find username or password fields")

	// ErrUnknownPageState indicates login ended somewhere other than the
	// dashboard or an MFA prompt, which usually means bad credentials.
	ErrUnknownPageState = errors.New("login failed due to an unknown page state")

	// ErrLandingTimeout indicates the dashboard never loaded after the MFA code.
	ErrLandingTimeout = errors.New("landing page not reached after submitting code")

	// ErrNoMFAPending indicates SubmitCode was called without a pending challenge.
	ErrNoMFAPending = errors.New("no multi-factor challenge pending")

	// ErrNotAuthenticated indicates a data call was made before login completed.
	ErrNotAuthenticated = errors.New("session not authenticated")

	// ErrAccountsUnavailable indicates the account list could not be captured.
	ErrAccountsUnavailable = errors.New("account information unavailable")

	// ErrAccountNotFound indicates the connector id is not in the account list.
	ErrAccountNotFound = errors.New("account not found")

	// ErrHoldingsUnavailable indicates the positions response was not captured.
	ErrHoldingsUnavailable = errors.New("holdings unavailable")

	// ErrQuoteUnavailable indicates the quote response was not captured.
	ErrQuoteUnavailable = errors.New("quote unavailable")

	// ErrOrderStatusUnavailable indicates the order summaries were not captured.
	ErrOrderStatusUnavailable = errors.New("order status unavailable")

	// ErrMalformedPosition indicates a position lacks the fields its category requires.
	ErrMalformedPosition = errors.New("malformed position")

	// ErrUnsupportedPosition indicates a position category this client does not parse.
	ErrUnsupportedPosition = errors.New("unsupported position category")

	// ErrInvalidOrder indicates the order request failed validation.
	ErrInvalidOrder = errors.New("invalid order")

	// ErrOrderPageUnavailable indicates the order-entry page never loaded.
	ErrOrderPageUnavailable = errors.New("order page did not load")

	// ErrPreviewUnavailable indicates the preview button was missing.
	ErrPreviewUnavailable = errors.New("no preview button found or it is not interactable")

	// ErrSubmitUnavailable indicates the place-order button was missing.
	ErrSubmitUnavailable = errors.New("no place order button found")

	// ErrPromptNotDismissed indicates a warning dialog could not be accepted.
	ErrPromptNotDismissed = errors.New("could not dismiss prompt")
)
