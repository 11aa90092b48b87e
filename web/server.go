package web

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"livescore-service/config"
	"livescore-service/services"
)

type Server struct {
	config     *config.Config
	store      services.Store
	engine     *services.ScoringEngine
	feed       *services.LiveFeed
	wsHub      *Hub
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

func NewServer(cfg *config.Config, store services.Store, engine *services.ScoringEngine, feed *services.LiveFeed, hub *Hub) *Server {
	return &Server{
		config: cfg,
		store:  store,
		engine: engine,
		feed:   feed,
		wsHub:  hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有来源(生产环境需要限制)
			},
		},
	}
}

// routes 构建路由
func (s *Server) routes() http.Handler {
	router := mux.NewRouter()

	// API路由
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/stats", s.handleGetStats).Methods("GET")

	api.HandleFunc("/matches", s.handleCreateMatch).Methods("POST")
	api.HandleFunc("/matches", s.handleListMatches).Methods("GET")
	api.HandleFunc("/matches/{match_id}", s.handleGetMatch).Methods("GET")
	api.HandleFunc("/matches/{match_id}/start", s.handleTransition("start")).Methods("POST")
	api.HandleFunc("/matches/{match_id}/pause", s.handleTransition("pause")).Methods("POST")
	api.HandleFunc("/matches/{match_id}/resume", s.handleTransition("resume")).Methods("POST")
	api.HandleFunc("/matches/{match_id}/finish", s.handleTransition("finish")).Methods("POST")
	api.HandleFunc("/matches/{match_id}/cancel", s.handleTransition("cancel")).Methods("POST")
	api.HandleFunc("/matches/{match_id}/events", s.handleRecordEvent).Methods("POST")
	api.HandleFunc("/matches/{match_id}/events", s.handleListEvents).Methods("GET")
	api.HandleFunc("/matches/{match_id}/updates", s.handleGetUpdates).Methods("GET")
	api.HandleFunc("/matches/{match_id}/score/adjust", s.handleAdjustScore).Methods("POST")
	api.HandleFunc("/matches/{match_id}/score/recompute", s.handleRecomputeScore).Methods("POST")

	// WebSocket路由
	router.HandleFunc("/ws", s.handleWebSocket)

	// CORS配置
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return c.Handler(router)
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         ":" + s.config.Port,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}

// writeJSON 输出JSON响应
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError 把错误分类映射到HTTP状态码
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrInvalidReference),
		errors.Is(err, services.ErrInvalidMinute),
		errors.Is(err, services.ErrInvalidEventType),
		errors.Is(err, services.ErrInvalidAdjustment):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrMatchClosed):
		status = http.StatusConflict
	case errors.Is(err, services.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]interface{}{"error": err.Error()})
}

// handleHealth 健康检查
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// handleGetStats 获取统计信息
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleCreateMatch 创建比赛
func (s *Server) handleCreateMatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		HomeTeamID     string  `json:"home_team_id"`
		AwayTeamID     string  `json:"away_team_id"`
		EventID        string  `json:"event_id"`
		ScheduledStart string  `json:"scheduled_start"`
		Venue          *string `json:"venue,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid request body"})
		return
	}
	if req.HomeTeamID == "" || req.AwayTeamID == "" || req.EventID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "home_team_id, away_team_id and event_id are required"})
		return
	}

	scheduledStart, err := time.Parse(time.RFC3339, req.ScheduledStart)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "scheduled_start must be RFC3339"})
		return
	}

	match, err := s.engine.CreateMatch(r.Context(), req.HomeTeamID, req.AwayTeamID, req.EventID, scheduledStart, req.Venue)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, match)
}

// handleListMatches 获取比赛列表
func (s *Server) handleListMatches(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	offset, _ := strconv.Atoi(query.Get("offset"))
	if offset < 0 {
		offset = 0
	}

	matches, err := s.store.ListMatches(r.Context(), query.Get("status"), query.Get("event_id"), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"matches": matches,
		"limit":   limit,
		"offset":  offset,
	})
}

// handleGetMatch 获取比赛快照
func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	snapshot, err := s.feed.GetSnapshot(r.Context(), vars["match_id"])
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

// handleTransition 状态变更
func (s *Server) handleTransition(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		matchID := mux.Vars(r)["match_id"]

		var match interface{}
		var err error

		switch action {
		case "start":
			match, err = s.engine.StartMatch(r.Context(), matchID)
		case "pause":
			match, err = s.engine.PauseMatch(r.Context(), matchID)
		case "resume":
			match, err = s.engine.ResumeMatch(r.Context(), matchID)
		case "finish":
			match, err = s.engine.FinishMatch(r.Context(), matchID)
		case "cancel":
			match, err = s.engine.CancelMatch(r.Context(), matchID)
		}

		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, match)
	}
}

// handleRecordEvent 记录比赛事件
func (s *Server) handleRecordEvent(w http.ResponseWriter, r *http.Request) {
	matchID := mux.Vars(r)["match_id"]

	var input services.RecordEventInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid request body"})
		return
	}
	if input.Type == "" || input.TeamID == "" || input.CreatedBy == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "type, team_id and created_by are required"})
		return
	}

	event, err := s.engine.RecordEvent(r.Context(), matchID, input)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// handleListEvents 获取比赛事件 (支持 since_sequence 增量拉取)
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	matchID := mux.Vars(r)["match_id"]

	sinceSequence, _ := strconv.ParseInt(r.URL.Query().Get("since_sequence"), 10, 64)
	if sinceSequence < 0 {
		sinceSequence = 0
	}

	events, err := s.store.ListEventsSince(r.Context(), matchID, sinceSequence)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"match_id": matchID,
		"events":   events,
	})
}

// handleGetUpdates 轮询增量更新
func (s *Server) handleGetUpdates(w http.ResponseWriter, r *http.Request) {
	matchID := mux.Vars(r)["match_id"]
	query := r.URL.Query()

	revision, _ := strconv.ParseInt(query.Get("revision"), 10, 64)
	sequence, _ := strconv.ParseInt(query.Get("sequence"), 10, 64)

	updates, err := s.feed.GetUpdatesSince(r.Context(), matchID, revision, sequence)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updates)
}

// handleAdjustScore 人工比分修正
func (s *Server) handleAdjustScore(w http.ResponseWriter, r *http.Request) {
	matchID := mux.Vars(r)["match_id"]

	var req struct {
		Side      string `json:"side"`
		Delta     int    `json:"delta"`
		CreatedBy string `json:"created_by"`
		Reason    string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid request body"})
		return
	}
	if req.CreatedBy == "" || req.Reason == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "created_by and reason are required"})
		return
	}

	event, match, err := s.engine.ManualScoreAdjustment(r.Context(), matchID, req.Side, req.Delta, req.CreatedBy, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"event": event,
		"match": match,
	})
}

// handleRecomputeScore 重放事件日志核对比分投影
func (s *Server) handleRecomputeScore(w http.ResponseWriter, r *http.Request) {
	matchID := mux.Vars(r)["match_id"]

	home, away, repaired, err := s.engine.RecomputeScore(r.Context(), matchID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"match_id":   matchID,
		"home_score": home,
		"away_score": away,
		"repaired":   repaired,
	})
}

// handleWebSocket WebSocket连接处理
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := &Client{
		hub:      s.wsHub,
		conn:     conn,
		send:     make(chan []byte, 256),
		matchIDs: make(map[string]bool),
	}

	client.hub.register <- client

	// 发送欢迎消息
	welcomeMsg := &WSMessage{
		Type: "connected",
		Data: map[string]interface{}{
			"message": "Connected to live score feed",
			"time":    time.Now().Unix(),
		},
	}
	welcomeData, _ := json.Marshal(welcomeMsg)
	client.send <- welcomeData

	go client.writePump()
	go client.readPump()
}
