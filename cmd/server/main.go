package main

import (
	"github.com/rs/zerolog/log"

	"github.com/rahulrsolguruz/chat-app-api/internal/config"
	"github.com/rahulrsolguruz/chat-app-api/internal/db"
	clog "github.com/rahulrsolguruz/chat-app-api/internal/log"
	"github.com/rahulrsolguruz/chat-app-api/internal/repo"
	"github.com/rahulrsolguruz/chat-app-api/internal/server"
	"github.com/rahulrsolguruz/chat-app-api/internal/ws"
)

func main() {
	// main 函数负责加载配置、初始化日志、连接数据库、
	// 重建房间成员缓存并启动 Gin 服务。
	cfg := config.Load()
	clog.Init(cfg.Env)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config validate")
	}

	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	store := repo.NewGormStore(gdb)
	reg := ws.NewRegistry()
	rooms := ws.NewRooms()

	// 成员缓存以数据库为准，启动时整体重建；失败宁可不启动。
	memberships, err := store.ListMemberships()
	if err != nil {
		log.Fatal().Err(err).Msg("load group memberships")
	}
	rooms.Rebuild(memberships)
	log.Info().Int("memberships", len(memberships)).Msg("room cache rebuilt")

	tracker := ws.NewTracker(reg, store)
	wsRouter := ws.NewRouter(reg, rooms, tracker, store, cfg.GroupBroadcastIncludesSender)

	r := server.SetupRouter(cfg, gdb, wsRouter, reg, rooms)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server run")
	}
}
