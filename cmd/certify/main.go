package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/certify/internal/migration"
	"github.com/smallbiznis/certify/internal/observability"
	"github.com/smallbiznis/certify/internal/server"
	"github.com/smallbiznis/certify/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		server.Module,
		migration.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
