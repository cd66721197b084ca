package tui

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/tutu/internal/tui/client"
	"github.com/matheus3301/tutu/internal/tui/keys"
	"github.com/matheus3301/tutu/internal/tui/model"
	"github.com/matheus3301/tutu/internal/tui/ui"
	"github.com/matheus3301/tutu/internal/tui/views"
	"github.com/rivo/tview"
)

const (
	pageLogin         = "login"
	pageConversations = "conversations"
	pageThread        = "thread"

	pollInterval = time.Second
	callTimeout  = 15 * time.Second
)

// App is the main TUI application shell.
type App struct {
	app       *tview.Application
	root      *tview.Flex
	pages     *tview.Pages
	vm        *model.ViewModel
	registry  *keys.Registry
	theme     *ui.Theme
	prompt    *ui.Prompt
	menu      *ui.Menu
	flashBar  *ui.FlashBar
	statusBar *views.StatusBar
	convList  *views.ConversationList
	thread    *views.MessageThread
	login     *views.LoginView
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(c *client.Client) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		vm:        model.NewViewModel(c),
		registry:  keys.NewRegistry(),
		theme:     theme,
		prompt:    ui.NewPrompt(theme),
		menu:      ui.NewMenu(theme),
		flashBar:  ui.NewFlashBar(theme),
		statusBar: views.NewStatusBar(),
		convList:  views.NewConversationList(theme),
		thread:    views.NewMessageThread(theme),
		login:     views.NewLoginView(theme),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 'q', Help: "Quit",
		Handler: a.Stop,
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: ':', Help: "Command",
		Handler: func() { a.showPrompt(ui.PromptCommand) },
	})

	a.registry.AddView(pageConversations, &keys.Action{
		Key: tcell.KeyRune, Rune: 'r', Help: "Resync",
		Handler: func() { a.run("Resync", a.vm.Resync) },
	})
	a.registry.AddView(pageConversations, &keys.Action{
		Key: tcell.KeyRune, Rune: 'm', Help: "Mark read",
		Handler: func() {
			id := a.convList.SelectedConversation()
			if id == "" {
				return
			}
			a.run("Mark read", func(ctx context.Context) error { return a.vm.MarkRead(ctx, id) })
		},
	})
	a.registry.AddView(pageConversations, &keys.Action{
		Key: tcell.KeyRune, Rune: '/', Help: "Filter",
		Handler: func() { a.showPrompt(ui.PromptFilter) },
	})

	a.registry.AddView(pageThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'i', Help: "Compose",
		Handler: func() { a.app.SetFocus(a.thread.Composer()) },
	})
	a.registry.AddView(pageThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'r', Help: "Resync",
		Handler: func() { a.run("Resync", a.vm.Resync) },
	})
	a.registry.AddView(pageThread, &keys.Action{
		Key: tcell.KeyEscape, Label: "Esc", Help: "Back",
		Handler: a.closeThread,
	})
}

func (a *App) setupCallbacks() {
	a.convList.SetSelectedFunc(func(row, _ int) {
		if id := a.convList.SelectedConversation(); id != "" {
			a.openThread(id)
		}
	})

	a.thread.SetOnSend(func(text string) {
		a.run("Send", func(ctx context.Context) error { return a.vm.Send(ctx, text) })
	})

	a.login.SetOnSubmit(func(username, password string) {
		a.login.ShowMessage("Signing in...")
		go func() {
			ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
			defer cancel()
			err := a.vm.Login(ctx, username, password)
			a.app.QueueUpdateDraw(func() {
				if err != nil {
					a.login.ShowMessage("Sign in failed: " + err.Error())
					return
				}
				a.login.Reset()
				a.render()
			})
		}()
	})

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		if mode == ui.PromptFilter {
			a.convList.SetFilter(text)
			return
		}
		if text == "" {
			return
		}
		a.execute(text)
	})
	a.prompt.SetOnCancel(a.hidePrompt)
}

func (a *App) setupLayout() {
	a.pages.AddPage(pageLogin, a.login, true, false)
	a.pages.AddPage(pageConversations, a.convList, true, true)
	a.pages.AddPage(pageThread, a.thread, true, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.flashBar, 1, 0, false).
		AddItem(a.menu, 1, 0, false).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(a.root, true)
	a.menu.Update(a.hints(pageConversations))

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		page, _ := a.pages.GetFrontPage()

		// Text inputs get every key; Esc leaves the composer.
		switch a.app.GetFocus().(type) {
		case *tview.InputField, *tview.Button:
			if event.Key() == tcell.KeyEscape && page == pageThread && a.app.GetFocus() == a.thread.Composer() {
				a.app.SetFocus(a.thread.Messages())
				return nil
			}
			return event
		}

		if a.registry.HandleEvent(page, event) {
			return nil
		}
		return event
	})
}

func (a *App) hints(page string) []ui.MenuHint {
	var hints []ui.MenuHint
	switch page {
	case pageLogin:
		hints = a.login.Hints()
	case pageConversations:
		hints = a.convList.Hints()
	}
	return append(hints, a.registry.Hints(page)...)
}

func (a *App) switchTo(page string) {
	a.pages.SwitchToPage(page)
	a.menu.Update(a.hints(page))
	switch page {
	case pageLogin:
		a.app.SetFocus(a.login.Form())
	case pageConversations:
		a.app.SetFocus(a.convList)
	case pageThread:
		a.app.SetFocus(a.thread.Messages())
	}
}

func (a *App) showPrompt(mode ui.PromptMode) {
	a.prompt.Activate(mode)
	a.root.ResizeItem(a.prompt, 3, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.root.ResizeItem(a.prompt, 0, 0)
	page, _ := a.pages.GetFrontPage()
	a.switchTo(page)
}

func (a *App) execute(input string) {
	cmd, err := ParseCommand(input)
	if err != nil {
		a.vm.Flash.Err(err)
		a.flashBar.Update(a.vm.Flash.Get())
		return
	}
	switch cmd.Name {
	case "open":
		a.openThread(cmd.Args)
	case "read":
		a.run("Mark read", func(ctx context.Context) error { return a.vm.MarkRead(ctx, cmd.Args) })
	case "image":
		a.run("Send image", func(ctx context.Context) error { return a.vm.SendImageFile(ctx, cmd.Args) })
	case "resync":
		a.run("Resync", a.vm.Resync)
	case "login":
		a.switchTo(pageLogin)
	case "logout":
		a.run("Sign out", a.vm.Logout)
	case "quit":
		a.Stop()
	}
}

// run calls fn off the UI goroutine, then redraws. Failures go to the flash bar.
func (a *App) run(what string, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			a.vm.Flash.Warn(what + " failed: " + err.Error())
		}
		a.app.QueueUpdateDraw(a.render)
	}()
}

func (a *App) openThread(id string) {
	a.run("Open", func(ctx context.Context) error {
		if err := a.vm.Open(ctx, id); err != nil {
			return err
		}
		a.app.QueueUpdateDraw(func() {
			a.thread.SetTitle(a.vm.Title(id))
			a.thread.Update(a.vm.Messages())
			a.switchTo(pageThread)
		})
		return nil
	})
}

func (a *App) closeThread() {
	a.vm.Close()
	a.switchTo(pageConversations)
}

// render pushes view model state into the widgets. It runs on the UI goroutine.
func (a *App) render() {
	st := a.vm.Status()
	a.statusBar.SetStatus(st)
	a.flashBar.Update(a.vm.Flash.Get())
	a.convList.Update(a.vm.Conversations())

	page, _ := a.pages.GetFrontPage()
	switch {
	case !st.Authenticated && page != pageLogin:
		a.vm.Close()
		a.switchTo(pageLogin)
	case st.Authenticated && page == pageLogin:
		a.switchTo(pageConversations)
	case page == pageThread:
		if a.vm.ActiveConversation() == "" {
			a.switchTo(pageConversations)
			return
		}
		a.thread.Update(a.vm.Messages())
	}
}

// Run starts polling the daemon and blocks until the UI exits.
func (a *App) Run() error {
	go a.poll()
	return a.app.Run()
}

func (a *App) poll() {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
		if err := a.vm.Refresh(ctx); err != nil && a.ctx.Err() == nil {
			a.vm.Flash.Err(err)
		}
		cancel()
		a.app.QueueUpdateDraw(a.render)

		select {
		case <-ticker.C:
		case <-a.ctx.Done():
			return
		}
	}
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
