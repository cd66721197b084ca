package views

import (
	"fmt"

	"github.com/matheus3301/tutu/internal/tui/ui"
	"github.com/rivo/tview"
)

const (
	usernameLabel = "Username"
	passwordLabel = "Password"
)

// LoginView asks for credentials.
type LoginView struct {
	*tview.Flex
	form     *tview.Form
	message  *tview.TextView
	onSubmit func(username, password string)
}

// NewLoginView creates a new login form.
func NewLoginView(theme *ui.Theme) *LoginView {
	lv := &LoginView{}

	form := tview.NewForm().
		AddInputField(usernameLabel, "", 32, nil, nil).
		AddPasswordField(passwordLabel, "", 32, '*', nil).
		AddButton("Sign in", lv.submit)
	form.SetBackgroundColor(theme.BgColor)
	form.SetFieldBackgroundColor(theme.BgColor)
	form.SetFieldTextColor(theme.FgColor)
	form.SetLabelColor(theme.MenuKeyColor)

	message := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	message.SetBackgroundColor(theme.BgColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(form, 7, 0, true).
		AddItem(message, 0, 1, false)
	flex.SetBorder(true)
	flex.SetBorderColor(theme.BorderColor)
	flex.SetBackgroundColor(theme.BgColor)
	flex.SetTitle(" Sign in ")
	flex.SetTitleColor(theme.TitleColor)

	lv.Flex = flex
	lv.form = form
	lv.message = message
	return lv
}

// Name implements ui.Component.
func (lv *LoginView) Name() string { return "Sign in" }

// Hints implements ui.Component.
func (lv *LoginView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Tab", Description: "Next field"},
		{Key: "Enter", Description: "Sign in"},
	}
}

// SetOnSubmit sets the callback run with the entered credentials.
func (lv *LoginView) SetOnSubmit(fn func(username, password string)) {
	lv.onSubmit = fn
}

// Form returns the form (for focus management).
func (lv *LoginView) Form() *tview.Form {
	return lv.form
}

// ShowMessage displays a line under the form.
func (lv *LoginView) ShowMessage(msg string) {
	lv.message.Clear()
	_, _ = fmt.Fprintf(lv.message, "\n%s", tview.Escape(msg))
}

// Reset clears the password field and the message.
func (lv *LoginView) Reset() {
	if f, ok := lv.form.GetFormItemByLabel(passwordLabel).(*tview.InputField); ok {
		f.SetText("")
	}
	lv.message.Clear()
	lv.form.SetFocus(0)
}

func (lv *LoginView) submit() {
	if lv.onSubmit == nil {
		return
	}
	lv.onSubmit(lv.fieldText(usernameLabel), lv.fieldText(passwordLabel))
}

func (lv *LoginView) fieldText(label string) string {
	if f, ok := lv.form.GetFormItemByLabel(label).(*tview.InputField); ok {
		return f.GetText()
	}
	return ""
}
