// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package audit_test

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/modreload/internal/audit"
	"github.com/holomush/modreload/internal/plugin"
	"github.com/holomush/modreload/internal/reload"
)

var _ = Describe("Audit store", Ordered, func() {
	var (
		ctx       context.Context
		container *postgres.PostgresContainer
		connStr   string
		pool      *pgxpool.Pool
		store     *audit.Store
	)

	BeforeAll(func() {
		ctx = context.Background()
		var err error
		container, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("modreload"),
			postgres.WithUsername("modreload"),
			postgres.WithPassword("modreload"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2)),
		)
		Expect(err).NotTo(HaveOccurred())

		connStr, err = container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())

		pool, err = audit.Connect(ctx, connStr)
		Expect(err).NotTo(HaveOccurred())
		store = audit.NewStore(pool)
	})

	AfterAll(func() {
		if pool != nil {
			pool.Close()
		}
		if container != nil {
			Expect(container.Terminate(ctx)).To(Succeed())
		}
	})

	It("reports a missing schema before migration", func() {
		err := store.Record(ctx, reload.Result{Name: "Economy", Action: reload.ActionLoad})
		Expect(reload.Code(err)).To(Equal(audit.CodeSchemaMissing))
	})

	It("migrates up", func() {
		migrator, err := audit.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		defer migrator.Close() //nolint:errcheck // test teardown

		Expect(migrator.Up()).To(Succeed())
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(1)))
		Expect(dirty).To(BeFalse())

		pending, err := migrator.Pending()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(BeEmpty())
	})

	It("records results and lists them newest first", func() {
		Expect(store.Record(ctx, reload.Result{
			Name:    "Economy",
			Action:  reload.ActionLoad,
			Outcome: reload.Outcome{Status: reload.StatusLoaded, PluginID: "first"},
		})).To(Succeed())
		Expect(store.Record(ctx, reload.Result{
			Name:    "Missing",
			Action:  reload.ActionLoad,
			Outcome: reload.Outcome{Status: reload.StatusFailed},
			Err:     plugin.ErrInvalidArtifact("plugins/Missing.zip", nil),
			Message: "invalid plugin artifact plugins/Missing.zip",
		})).To(Succeed())
		Expect(store.Record(ctx, reload.Result{
			Name:    "economy",
			Action:  reload.ActionUnload,
			Outcome: reload.Outcome{Status: reload.StatusUnloaded},
		})).To(Succeed())

		events, err := store.Recent(ctx, "", 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(3))
		Expect(events[0].Action).To(Equal("unload"))
		Expect(events[1].Code).To(Equal(plugin.CodeInvalidArtifact))

		economy, err := store.Recent(ctx, "ECONOMY", 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(economy).To(HaveLen(2))
		Expect(economy[1].PluginID).To(Equal("first"))
	})
})
