package commands

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	domainChat "github.com/jbctechsolutions/cropcare/internal/domain/chat"
	domainerrors "github.com/jbctechsolutions/cropcare/internal/domain/errors"
	"github.com/jbctechsolutions/cropcare/internal/domain/offline"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/config"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/logging"
)

// executeCommand executes a cobra command with the given args and returns
// what it wrote.
func executeCommand(root *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	Shutdown()
	return buf.String(), err
}

// writeTestConfig writes a config pointing at an unreachable backend and
// returns its path. A non-empty token signs the user in.
func writeTestConfig(t *testing.T, token string) string {
	t.Helper()
	dir := t.TempDir()

	cfg := config.NewDefaultConfig()
	cfg.Backend.URL = "http://127.0.0.1:1"
	cfg.Backend.AnonKey = "anon"
	cfg.Backend.AccessToken = token
	cfg.Sync.ProbeTimeout = time.Second
	cfg.Cache.DBPath = filepath.Join(dir, "cropcare.db")
	cfg.Capture.Directory = filepath.Join(dir, "capture")
	cfg.Capture.SpoolDir = filepath.Join(dir, "spool")
	cfg.Logging.Level = "error"

	loader, err := config.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader failed: %v", err)
	}
	path := filepath.Join(dir, "config.yaml")
	if err := loader.Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	return path
}

func signedToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func writePhoto(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{40, uint8(100 + x), 60, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	path := filepath.Join(t.TempDir(), "leaf.png")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("write photo: %v", err)
	}
	return path
}

func decodeJSON(t *testing.T, out string, dest any) {
	t.Helper()
	if err := json.Unmarshal([]byte(out), dest); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
}

func TestNewRootCmd(t *testing.T) {
	cmd := NewRootCmd()

	if cmd == nil {
		t.Fatal("NewRootCmd returned nil")
	}

	if cmd.Use != "cropcare" {
		t.Errorf("expected Use='cropcare', got %q", cmd.Use)
	}

	wantSubcmds := []string{
		"version", "init", "login", "logout", "whoami",
		"analyze", "analyses", "chat", "translate", "prefs", "weather",
		"sync", "cache", "daemon",
	}
	subcmds := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		subcmds[sub.Name()] = true
	}

	for _, want := range wantSubcmds {
		if !subcmds[want] {
			t.Errorf("missing subcommand: %s", want)
		}
	}

	wantFlags := []string{"config", "output", "verbose"}
	for _, flag := range wantFlags {
		if cmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("missing persistent flag: %s", flag)
		}
	}
}

func TestVersionCmd_NoError(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"basic", []string{"version"}, false},
		{"short", []string{"version", "--short"}, false},
		{"json", []string{"version", "-o", "json"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeCommand(NewRootCmd(), tt.args...)
			if (err != nil) != tt.wantErr {
				t.Errorf("error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestVersionCmd_JSON(t *testing.T) {
	out, err := executeCommand(NewRootCmd(), "version", "-o", "json")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	var info VersionInfo
	decodeJSON(t, out, &info)
	if info.Version != Version {
		t.Errorf("version = %q, want %q", info.Version, Version)
	}
	if info.CacheSchema < 1 {
		t.Errorf("cache_schema = %d", info.CacheSchema)
	}
}

func TestInitCmd_NonInteractive(t *testing.T) {
	dir := t.TempDir()
	args := []string{"init", "-o", "json", "--dir", dir, "--url", "https://example.supabase.co/", "--anon-key", "anon", "--language", "hi"}

	out, err := executeCommand(NewRootCmd(), args...)
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	var res InitResult
	decodeJSON(t, out, &res)
	if !res.Initialized {
		t.Fatal("expected a fresh configuration")
	}
	if _, err := os.Stat(res.CaptureDir); err != nil {
		t.Errorf("capture directory not created: %v", err)
	}

	loader, err := config.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader failed: %v", err)
	}
	cfg, err := loader.Load(res.ConfigFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Backend.URL != "https://example.supabase.co" {
		t.Errorf("backend url = %q", cfg.Backend.URL)
	}
	if cfg.User.Language != "hi" {
		t.Errorf("language = %q, want hi", cfg.User.Language)
	}

	out, err = executeCommand(NewRootCmd(), args...)
	if err != nil {
		t.Fatalf("second init failed: %v", err)
	}
	decodeJSON(t, out, &res)
	if res.Initialized {
		t.Error("existing configuration should be kept without --force")
	}
}

func TestInitCmd_Prompts(t *testing.T) {
	dir := t.TempDir()
	root := NewRootCmd()
	root.SetIn(strings.NewReader("https://example.supabase.co\nanon-key\nmr\nn\n"))

	if _, err := executeCommand(root, "init", "--dir", dir); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	loader, _ := config.NewLoader(dir)
	cfg, err := loader.Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Backend.AnonKey != "anon-key" || cfg.User.Language != "mr" || cfg.Sync.Realtime {
		t.Errorf("unexpected config: key=%q language=%q realtime=%v", cfg.Backend.AnonKey, cfg.User.Language, cfg.Sync.Realtime)
	}
}

func TestCommands_ValidationErrors(t *testing.T) {
	cfgPath := writeTestConfig(t, "")

	tests := []struct {
		name     string
		args     []string
		wantCode domainerrors.ErrorCode
	}{
		{"analyze needs a photo", []string{"analyze", "--crop", "tomato"}, domainerrors.CodeValidation},
		{"analyze photo and capture", []string{"analyze", "leaf.jpg", "--capture", "--crop", "tomato"}, domainerrors.CodeValidation},
		{"analyze wait without capture", []string{"analyze", "leaf.jpg", "--wait", "--crop", "tomato"}, domainerrors.CodeValidation},
		{"analyze missing file", []string{"analyze", filepath.Join(t.TempDir(), "none.jpg"), "--crop", "tomato"}, domainerrors.CodeValidation},
		{"weather needs coordinates", []string{"weather"}, domainerrors.CodeValidation},
		{"weather out of range", []string{"weather", "--lat", "91", "--lng", "0"}, domainerrors.CodeValidation},
		{"prefs set nothing", []string{"prefs", "set"}, domainerrors.CodeValidation},
		{"prefs set bad units", []string{"prefs", "set", "--units", "furlongs"}, domainerrors.CodeValidation},
		{"prefs set bad quiet hours", []string{"prefs", "set", "--quiet-hours", "late"}, domainerrors.CodeValidation},
		{"prefs set conflicting quiet hours", []string{"prefs", "set", "--quiet-hours", "22:00-06:00", "--no-quiet-hours"}, domainerrors.CodeValidation},
		{"prefs set needs a session", []string{"prefs", "set", "--language", "hi"}, domainerrors.CodeAuth},
		{"unknown output format", []string{"cache", "stats", "-o", "yaml"}, domainerrors.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeCommand(NewRootCmd(), append(tt.args, "--config", cfgPath)...)
			if err == nil {
				t.Fatal("expected an error")
			}
			if got := domainerrors.CodeOf(err); got != tt.wantCode {
				t.Errorf("code = %q, want %q (err: %v)", got, tt.wantCode, err)
			}
		})
	}
}

func TestSyncNow_Offline(t *testing.T) {
	cfgPath := writeTestConfig(t, "")

	_, err := executeCommand(NewRootCmd(), "sync", "now", "--config", cfgPath)
	if !domainerrors.Is(err, domainerrors.ErrOffline) {
		t.Errorf("err = %v, want ErrOffline", err)
	}
}

func TestCacheCommands(t *testing.T) {
	cfgPath := writeTestConfig(t, "")

	out, err := executeCommand(NewRootCmd(), "cache", "stats", "-o", "json", "--config", cfgPath)
	if err != nil {
		t.Fatalf("cache stats failed: %v", err)
	}
	var stats struct {
		Cache        map[string]any `json:"cache"`
		Translations int            `json:"translations"`
	}
	decodeJSON(t, out, &stats)
	if stats.Translations != 0 {
		t.Errorf("translations = %d, want 0", stats.Translations)
	}

	out, err = executeCommand(NewRootCmd(), "cache", "sweep", "-o", "json", "--config", cfgPath)
	if err != nil {
		t.Fatalf("cache sweep failed: %v", err)
	}
	var swept map[string]int64
	decodeJSON(t, out, &swept)
	if swept["removed"] != 0 {
		t.Errorf("removed = %d, want 0", swept["removed"])
	}

	if _, err := executeCommand(NewRootCmd(), "cache", "clear", "--translations", "--config", cfgPath); err != nil {
		t.Fatalf("cache clear failed: %v", err)
	}
}

func TestTranslate_FallsBackToOriginal(t *testing.T) {
	cfgPath := writeTestConfig(t, "")

	out, err := executeCommand(NewRootCmd(), "translate", "Apply neem oil", "Early blight", "--to", "hi", "-o", "json", "--config", cfgPath)
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}
	var got []Translation
	decodeJSON(t, out, &got)
	if len(got) != 2 {
		t.Fatalf("got %d translations, want 2", len(got))
	}
	for _, tr := range got {
		if tr.Translation != tr.Text {
			t.Errorf("unreachable service should return the original, got %q for %q", tr.Translation, tr.Text)
		}
		if tr.Target != "hi" {
			t.Errorf("target = %q, want hi", tr.Target)
		}
	}
}

func TestOfflineWorkIsQueued(t *testing.T) {
	cfgPath := writeTestConfig(t, signedToken(t, "farmer-1"))
	photo := writePhoto(t)

	out, err := executeCommand(NewRootCmd(), "analyze", photo, "--crop", "tomato", "-o", "json", "--config", cfgPath)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	var res struct {
		Analysis struct {
			ID       string `json:"id"`
			CropType string `json:"crop_type"`
		} `json:"analysis"`
		Queued bool `json:"queued"`
	}
	decodeJSON(t, out, &res)
	if !res.Queued {
		t.Error("offline analysis should be queued")
	}
	if res.Analysis.CropType != "tomato" {
		t.Errorf("crop type = %q", res.Analysis.CropType)
	}

	if _, err := executeCommand(NewRootCmd(), "prefs", "set", "--language", "hi", "--config", cfgPath); err != nil {
		t.Fatalf("prefs set failed: %v", err)
	}

	out, err = executeCommand(NewRootCmd(), "analyses", "list", "-o", "json", "--config", cfgPath)
	if err != nil {
		t.Fatalf("analyses list failed: %v", err)
	}
	var list []map[string]any
	decodeJSON(t, out, &list)
	if len(list) != 1 || list[0]["id"] != res.Analysis.ID {
		t.Errorf("queued analysis missing from list: %v", list)
	}

	out, err = executeCommand(NewRootCmd(), "prefs", "show", "-o", "json", "--config", cfgPath)
	if err != nil {
		t.Fatalf("prefs show failed: %v", err)
	}
	var prefs map[string]any
	decodeJSON(t, out, &prefs)
	if prefs["language"] != "hi" {
		t.Errorf("language = %v, want hi from the local cache", prefs["language"])
	}

	out, err = executeCommand(NewRootCmd(), "sync", "status", "-o", "json", "--config", cfgPath)
	if err != nil {
		t.Fatalf("sync status failed: %v", err)
	}
	var status struct {
		Online      bool           `json:"online"`
		Pending     int            `json:"pending"`
		ByOperation map[string]int `json:"by_operation"`
	}
	decodeJSON(t, out, &status)
	if status.Online {
		t.Error("backend should be unreachable")
	}
	if status.Pending != 2 {
		t.Errorf("pending = %d, want 2", status.Pending)
	}
	if status.ByOperation["analysis/create"] != 1 || status.ByOperation["preference/update"] != 1 {
		t.Errorf("by operation = %v", status.ByOperation)
	}
}

func TestLastFailedAndLastReply(t *testing.T) {
	transcript := []domainChat.Message{
		{ID: "w", Role: domainChat.RoleAssistant, Content: "Hello!", Synthetic: true},
		{ID: "u1", Role: domainChat.RoleUser, Content: "first", Status: domainChat.StatusError},
		{ID: "u2", Role: domainChat.RoleUser, Content: "second", Status: domainChat.StatusRead},
		{ID: "a2", Role: domainChat.RoleAssistant, Content: "Use mulch."},
		{ID: "u3", Role: domainChat.RoleUser, Content: "third", Status: domainChat.StatusError},
	}

	if got := lastFailed(transcript); got != "u3" {
		t.Errorf("lastFailed() = %q, want u3", got)
	}
	if got := lastFailed(transcript[:3]); got != "u1" {
		t.Errorf("lastFailed() = %q, want u1", got)
	}
	if got := lastFailed(nil); got != "" {
		t.Errorf("lastFailed(nil) = %q, want empty", got)
	}
	if got := lastReply(transcript); got != "Use mulch." {
		t.Errorf("lastReply() = %q", got)
	}
}

func TestCountByOperation(t *testing.T) {
	ops := []*offline.PendingOperation{
		{EntityType: offline.EntityAnalysis, Action: offline.ActionCreate},
		{EntityType: offline.EntityAnalysis, Action: offline.ActionCreate},
		{EntityType: offline.EntityChatMessage, Action: offline.ActionDelete},
	}
	got := countByOperation(ops)
	if got["analysis/create"] != 2 || got["chat_message/delete"] != 1 || len(got) != 2 {
		t.Errorf("countByOperation() = %v", got)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", domainerrors.Validation("bad"), 2},
		{"auth", domainerrors.NewError(domainerrors.CodeAuth, "no", nil), 3},
		{"other", os.ErrNotExist, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTagInvocation(t *testing.T) {
	cmd := &cobra.Command{Use: "weather"}

	tagInvocation(cmd)
	first, _ := cmd.Context().Value(logging.CorrelationIDKey).(string)
	if first == "" {
		t.Fatal("expected a correlation id on the command context")
	}

	tagInvocation(cmd)
	second, _ := cmd.Context().Value(logging.CorrelationIDKey).(string)
	if second == "" || second == first {
		t.Errorf("expected a fresh id per invocation, got %q then %q", first, second)
	}
}
