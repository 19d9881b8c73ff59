// Package menu decides the window menu structure from the active URL scheme.
// Build is pure: the same Options always produce the same Template.
package menu

import (
	"gopkg.in/yaml.v3"

	"pkt.systems/shellsync/schema"
)

// Variant names the menu shape.
type Variant string

const (
	// VariantNoWindows is used while no window is open; window items are disabled.
	VariantNoWindows Variant = "no-windows"
	// VariantGeneric is the menu for ordinary pages.
	VariantGeneric Variant = "generic"
	// VariantPeerSynced enables items for content-addressed, peer-synced documents.
	VariantPeerSynced Variant = "peer-synced"
)

// PlatformDarwin adds the application menu.
const PlatformDarwin = "darwin"

// peerSyncedSchemes lists URL schemes served from peer-synced archives.
var peerSyncedSchemes = map[string]struct{}{
	"dat": {},
}

// Options are the inputs of Build.
type Options struct {
	Scheme    string
	NoWindows bool
	Platform  string
}

// Template is a complete window menu.
type Template struct {
	Variant  Variant `yaml:"variant"`
	Platform string  `yaml:"platform,omitempty"`
	Menus    []Menu  `yaml:"menus"`
}

// Menu is one top-level menu.
type Menu struct {
	Label string `yaml:"label"`
	Role  string `yaml:"role,omitempty"`
	Items []Item `yaml:"items"`
}

// Item is a menu entry. Action names the command the chrome dispatches.
type Item struct {
	Label       string `yaml:"label,omitempty"`
	Accelerator string `yaml:"accelerator,omitempty"`
	Role        string `yaml:"role,omitempty"`
	Action      string `yaml:"action,omitempty"`
	Enabled     bool   `yaml:"enabled"`
	Separator   bool   `yaml:"separator,omitempty"`
	Submenu     []Item `yaml:"submenu,omitempty"`
}

// VariantFor classifies a scheme.
func VariantFor(scheme string, noWindows bool) Variant {
	if noWindows {
		return VariantNoWindows
	}
	if _, ok := peerSyncedSchemes[scheme]; ok {
		return VariantPeerSynced
	}
	return VariantGeneric
}

// Encode renders the template as YAML.
func (t Template) Encode() ([]byte, error) {
	return yaml.Marshal(t)
}

// Build returns the menu template for opts.
func Build(opts Options) Template {
	scheme := opts.Scheme
	if scheme == "" {
		scheme = schema.SchemeNone
	}
	variant := VariantFor(scheme, opts.NoWindows)
	win := variant != VariantNoWindows
	peer := variant == VariantPeerSynced
	darwin := opts.Platform == PlatformDarwin

	menus := make([]Menu, 0, 7)
	if darwin {
		menus = append(menus, Menu{
			Label: "Beaker",
			Items: []Item{
				action("Preferences", "Command+,", "open-settings", true),
				separator(),
				{Label: "Services", Role: "services", Enabled: true},
				separator(),
				role("Hide Beaker", "Command+H", "hide"),
				role("Hide Others", "Command+Alt+H", "hideothers"),
				role("Show All", "", "unhide"),
				separator(),
				action("Quit", "Command+Q", "quit", true),
			},
		})
	}
	menus = append(menus,
		Menu{
			Label: "File",
			Items: []Item{
				action("New Tab", "CmdOrCtrl+T", "new-tab", true),
				action("New Window", "CmdOrCtrl+N", "new-window", true),
				action("Reopen Closed Tab", "CmdOrCtrl+Shift+T", "reopen-closed-tab", true),
				action("Open File", "CmdOrCtrl+O", "open-file", true),
				action("Open Location", "CmdOrCtrl+L", "open-location", true),
				separator(),
				action("Save Page As...", "CmdOrCtrl+S", "save-page", win),
				separator(),
				action("Print...", "CmdOrCtrl+P", "print", win),
				separator(),
				action("Close Window", "CmdOrCtrl+Shift+W", "close-window", win),
				action("Close Tab", "CmdOrCtrl+W", "close-tab", win),
			},
		},
		Menu{
			Label: "Edit",
			Items: []Item{
				action("Undo", "CmdOrCtrl+Z", "undo", win),
				action("Redo", "Shift+CmdOrCtrl+Z", "redo", win),
				separator(),
				action("Cut", "CmdOrCtrl+X", "cut", win),
				action("Copy", "CmdOrCtrl+C", "copy", win),
				action("Paste", "CmdOrCtrl+V", "paste", win),
				action("Select All", "CmdOrCtrl+A", "select-all", win),
				action("Find in Page", "CmdOrCtrl+F", "find", win),
				action("Find Next", "CmdOrCtrl+G", "find-next", win),
				action("Find Previous", "Shift+CmdOrCtrl+G", "find-previous", win),
			},
		},
		Menu{
			Label: "View",
			Items: []Item{
				action("Reload", "CmdOrCtrl+R", "reload", win),
				action("Hard Reload (Clear Cache)", "CmdOrCtrl+Shift+R", "hard-reload", win),
				separator(),
				action("Zoom In", "CmdOrCtrl+Plus", "zoom-in", win),
				action("Zoom Out", "CmdOrCtrl+-", "zoom-out", win),
				action("Actual Size", "CmdOrCtrl+0", "zoom-reset", win),
				separator(),
				{
					Label:   "Advanced Tools",
					Enabled: true,
					Submenu: []Item{
						action("Reload Shell-Window", "CmdOrCtrl+alt+shift+R", "reload-shell", win),
						action("Toggle Shell-Window DevTools", "CmdOrCtrl+alt+shift+I", "toggle-shell-devtools", win),
						separator(),
						action("Open Archives Debug Page", "", "open-archives-debug", win),
						action("Open Dat-DNS Cache Page", "", "open-dns-cache", win),
						action("Open Debug Log Page", "", "open-debug-log", win),
					},
				},
				action("Toggle DevTools", devtoolsAccelerator(darwin, "I"), "toggle-devtools", win),
				action("Toggle Javascript Console", devtoolsAccelerator(darwin, "J"), "toggle-console", win),
				action("Toggle Live Reloading", "", "toggle-live-reloading", peer),
				separator(),
				{Label: "Full Screen", Accelerator: fullscreenAccelerator(darwin), Role: "toggleFullScreen", Enabled: win},
			},
		},
		Menu{
			Label: "History",
			Role:  "history",
			Items: []Item{
				action("Back", "CmdOrCtrl+Left", "go-back", win),
				action("Forward", "CmdOrCtrl+Right", "go-forward", win),
				action("Show Full History", historyAccelerator(darwin), "show-history", true),
				separator(),
				action("Bookmark this Page", "CmdOrCtrl+D", "bookmark", win),
			},
		},
		Menu{
			Label: "Window",
			Role:  "window",
			Items: windowItems(darwin, win),
		},
		Menu{
			Label: "Help",
			Role:  "help",
			Items: helpItems(darwin),
		},
	)
	return Template{Variant: variant, Platform: opts.Platform, Menus: menus}
}

func windowItems(darwin, win bool) []Item {
	items := []Item{
		role("Minimize", "CmdOrCtrl+M", "minimize"),
		action("Next Tab", "CmdOrCtrl+}", "next-tab", win),
		action("Previous Tab", "CmdOrCtrl+{", "previous-tab", win),
	}
	if darwin {
		items = append(items, separator(), role("Bring All to Front", "", "front"))
	}
	return items
}

func helpItems(darwin bool) []Item {
	items := []Item{
		action("Help", "F1", "open-help", true),
		action("Report Bug", "", "report-bug", true),
		action("Mailing List", "", "mailing-list", true),
	}
	if !darwin {
		items = append(items, separator(), Item{Label: "About", Role: "about", Action: "open-settings", Enabled: true})
	}
	return items
}

func devtoolsAccelerator(darwin bool, key string) string {
	if darwin {
		return "Alt+CmdOrCtrl+" + key
	}
	return "Shift+CmdOrCtrl+" + key
}

func fullscreenAccelerator(darwin bool) string {
	if darwin {
		return "Ctrl+Cmd+F"
	}
	return "F11"
}

func historyAccelerator(darwin bool) string {
	if darwin {
		return "Cmd+Y"
	}
	return "Ctrl+H"
}

func action(label, accelerator, name string, enabled bool) Item {
	return Item{Label: label, Accelerator: accelerator, Action: name, Enabled: enabled}
}

func role(label, accelerator, name string) Item {
	return Item{Label: label, Accelerator: accelerator, Role: name, Enabled: true}
}

func separator() Item {
	return Item{Separator: true}
}
