package app

import (
	"sort"
	"strings"
)

// Command はlinknoteバイナリのサブコマンド。
type Command string

const (
	// CommandServe はAPIサーバーと短縮URLのリダイレクトを提供する。引数なしの既定値。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッションの削除とリンク先タイトルの取得を行う。
	CommandWorker Command = "worker"
	// CommandMigrate は未適用のマイグレーションを適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中のサーバーの/healthを確認する。
	// distrolessイメージにはcurlがないため、DockerのHEALTHCHECKから使う。
	CommandHealthcheck Command = "healthcheck"
)

var commands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandWorker):      CommandWorker,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
}

// ParseCommand は先頭の引数からサブコマンドを決める。
// 2番目以降の引数は無視する。未知のコマンドはserveとして扱い、okにfalseを返す。
func ParseCommand(args []string) (cmd Command, ok bool) {
	if len(args) == 0 {
		return CommandServe, true
	}
	if cmd, ok := commands[args[0]]; ok {
		return cmd, true
	}
	return CommandServe, false
}

// Usage はサブコマンドの一覧を返す。
func Usage() string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return "usage: linknote [" + strings.Join(names, "|") + "]"
}
