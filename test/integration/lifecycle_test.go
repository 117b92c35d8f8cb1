// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package integration

import (
	"bytes"
	"context"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/modreload/internal/console"
	"github.com/holomush/modreload/internal/host"
	"github.com/holomush/modreload/internal/permission"
	"github.com/holomush/modreload/internal/plugin/lua"
	"github.com/holomush/modreload/internal/plugin/plugintest"
	"github.com/holomush/modreload/internal/reload"
)

const bankScript = `
balance = 100

function on_enable()
    modreload.log("info", "bank open")
end

function on_command(cmd)
    if cmd.name == "deposit" then
        balance = balance + tonumber(cmd.args[1])
    end
    cmd.reply("balance " .. balance)
    return true
end
`

const shopScript = `
function on_command(cmd)
    cmd.reply("shop open")
    return true
end
`

const shopManifest = `name: Shop
version: 1.0.0
type: lua
lua-plugin:
  entry: main.lua
depend:
  - name: Bank
    version: ">= 1.0.0"
commands:
  - name: buy
    usage: /buy <item>
`

var _ = Describe("Plugin lifecycle", func() {
	var (
		ctx    context.Context
		dir    string
		srv    *host.Server
		facade *reload.Facade
		out    *bytes.Buffer
		sender *console.Sender
	)

	run := func(lines ...string) string {
		out.Reset()
		Expect(console.Run(ctx, srv, sender, strings.NewReader(strings.Join(lines, "\n")))).To(Succeed())
		return out.String()
	}

	BeforeEach(func() {
		ctx = context.Background()
		dir = GinkgoT().TempDir()
		srv = host.New(dir, host.WithRuntime(lua.NewRuntime()))
		DeferCleanup(func() { Expect(srv.Close(ctx)).To(Succeed()) })

		manager := reload.NewManager(srv, reload.NewServerAccessor(srv), reload.DirLocator{Dir: dir})
		facade = reload.NewFacade(manager)
		console.Register(ctx, srv, facade)

		grants := permission.NewGrants()
		Expect(grants.Set("op", []string{"modreload.*"})).To(Succeed())
		out = new(bytes.Buffer)
		sender = console.NewSender("op", grants, out)

		plugintest.WriteLuaPlugin(GinkgoT(), dir, "Bank", "1.0.0", bankScript, "balance", "deposit")
		plugintest.WriteArchive(GinkgoT(), dir, "Shop", map[string]string{
			"plugin.yaml": shopManifest,
			"main.lua":    shopScript,
		})
		Expect(srv.LoadAll(ctx)).To(Succeed())
	})

	It("loads dependencies before dependents at startup", func() {
		names := []string{}
		for _, p := range srv.Snapshot(ctx) {
			names = append(names, p.Name)
		}
		Expect(names).To(Equal([]string{"Bank", "Shop"}))
	})

	It("resets plugin state on reload", func() {
		Expect(run("deposit 50")).To(ContainSubstring("balance 150"))
		Expect(run("plugin reload Bank")).To(ContainSubstring("reload Bank: reloaded"))
		Expect(run("balance")).To(ContainSubstring("balance 100"))
	})

	It("removes commands on unload and restores them on load", func() {
		Expect(run("plugin unload Bank")).To(ContainSubstring("unload Bank: unloaded"))
		Expect(run("deposit 5")).To(ContainSubstring("Unknown command."))
		Expect(run("buy apple")).To(ContainSubstring("shop open"))

		Expect(run("plugin load Bank")).To(ContainSubstring("load Bank: loaded"))
		Expect(run("bank:deposit 5")).To(ContainSubstring("balance 105"))
	})

	It("refuses a dependent whose dependency is gone", func() {
		run("plugin unload Shop Bank")
		Expect(run("plugin load Shop")).To(ContainSubstring("failed (MISSING_DEPENDENCY)"))
		Expect(run("plugin load Bank Shop")).To(And(
			ContainSubstring("load Bank: loaded"),
			ContainSubstring("load Shop: loaded"),
		))
	})

	It("keeps the registry consistent under concurrent operations", func() {
		var wg sync.WaitGroup
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				action := []string{"reload", "unload", "load"}[i%3]
				_, err := facade.Execute(ctx, action, []string{"Bank"})
				Expect(err).NotTo(HaveOccurred())
			}()
		}
		wg.Wait()

		_, _ = facade.Execute(ctx, "load", []string{"Bank"})
		Expect(srv.Snapshot(ctx)).To(HaveLen(2))
		Expect(run("balance")).To(ContainSubstring("balance 100"))
	})
})
