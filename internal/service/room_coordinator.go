package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const eventBufferSize = 256

// CoordinatorConfig 방 코디네이터 설정
type CoordinatorConfig struct {
	RatingTolerance   int
	DefaultRating     int
	MaxCodeBytes      int
	QuestionTimeout   time.Duration
	EvaluationTimeout time.Duration
	// 레이팅 저장에 허용하는 시간
	PersistTimeout time.Duration
	Policy         RatingPolicy
}

// DefaultCoordinatorConfig 기본 설정
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		RatingTolerance:   150,
		DefaultRating:     1000,
		MaxCodeBytes:      64 * 1024,
		QuestionTimeout:   45 * time.Second,
		EvaluationTimeout: 90 * time.Second,
		PersistTimeout:    10 * time.Second,
		Policy:            DefaultRatingPolicy(),
	}
}

// RoomCoordinator 대기열과 방 상태를 관리하는 단일 이벤트 루프
//
// 대기열과 레지스트리는 Run 고루틴에서만 변경된다. 외부 서비스 호출은
// 별도 고루틴에서 실행되고 결과는 이벤트로 루프에 다시 들어온다.
type RoomCoordinator struct {
	cfg       CoordinatorConfig
	queue     *MatchmakingQueue
	rooms     *RoomRegistry
	ratings   RatingStore
	questions QuestionGenerator
	evaluator Evaluator
	archiver  ArchiveDispatcher
	notifier  Notifier
	logger    *zap.Logger

	events   chan event
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
	tasks    sync.WaitGroup

	evaluations int64
	now         func() time.Time
}

func NewRoomCoordinator(
	cfg CoordinatorConfig,
	ratings RatingStore,
	questions QuestionGenerator,
	evaluator Evaluator,
	archiver ArchiveDispatcher,
	notifier Notifier,
	logger *zap.Logger,
) *RoomCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultRating <= 0 {
		cfg.DefaultRating = 1000
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &RoomCoordinator{
		cfg:       cfg,
		queue:     NewMatchmakingQueue(cfg.RatingTolerance),
		rooms:     NewRoomRegistry(),
		ratings:   ratings,
		questions: questions,
		evaluator: evaluator,
		archiver:  archiver,
		notifier:  notifier,
		logger:    logger,
		events:    make(chan event, eventBufferSize),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		now:       time.Now,
	}
}

// Run 이벤트 루프 실행. ctx가 취소되거나 Stop이 호출되면 반환한다.
func (c *RoomCoordinator) Run(ctx context.Context) error {
	c.logger.Info("Starting RoomCoordinator",
		zap.Int("ratingTolerance", c.queue.Tolerance()),
		zap.Duration("questionTimeout", c.cfg.QuestionTimeout),
		zap.Duration("evaluationTimeout", c.cfg.EvaluationTimeout))

	defer c.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.ctx.Done():
			return nil
		case evt := <-c.events:
			c.handle(evt)
		}
	}
}

// Stop 이벤트 루프 중지 요청
func (c *RoomCoordinator) Stop() {
	c.cancel()
}

// Wait 실행 중인 백그라운드 작업(외부 호출, 레이팅 저장, 기록 보관) 종료 대기
func (c *RoomCoordinator) Wait() {
	c.tasks.Wait()
}

func (c *RoomCoordinator) shutdown() {
	c.stopOnce.Do(func() {
		c.cancel()
		close(c.done)
		c.logger.Info("RoomCoordinator stopped",
			zap.Int("waiting", c.queue.Len()),
			zap.Int("activeRooms", c.rooms.Len()))
	})
}

// Stats 현재 대기 인원과 방 상태 조회
func (c *RoomCoordinator) Stats(ctx context.Context) (CoordinatorStats, error) {
	reply := make(chan CoordinatorStats, 1)
	if err := c.post(statsRequest{reply: reply}); err != nil {
		return CoordinatorStats{}, err
	}

	select {
	case stats := <-reply:
		return stats, nil
	case <-ctx.Done():
		return CoordinatorStats{}, ctx.Err()
	case <-c.done:
		return CoordinatorStats{}, ErrCoordinatorStopped
	}
}

func (c *RoomCoordinator) post(evt event) error {
	select {
	case <-c.done:
		return ErrCoordinatorStopped
	default:
	}

	select {
	case c.events <- evt:
		return nil
	case <-c.done:
		return ErrCoordinatorStopped
	}
}

func (c *RoomCoordinator) spawn(fn func()) {
	c.tasks.Add(1)
	go func() {
		defer c.tasks.Done()
		fn()
	}()
}

func (c *RoomCoordinator) handle(evt event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Recovered from panic in event handler", zap.Any("panic", r))
		}
	}()

	switch e := evt.(type) {
	case joinQueueEvent:
		c.onJoinQueue(e)
	case leaveQueueEvent:
		c.onLeaveQueue(e)
	case joinRoomEvent:
		c.onJoinRoom(e)
	case codeChangeEvent:
		c.onCodeChange(e)
	case submitEvent:
		c.onSubmit(e)
	case generateQuestionEvent:
		c.onGenerateQuestion(e)
	case disconnectEvent:
		c.onDisconnect(e)
	case questionResultEvent:
		c.onQuestionResult(e)
	case evaluationResultEvent:
		c.onEvaluationResult(e)
	case statsRequest:
		e.reply <- c.stats()
	default:
		c.logger.Warn("Unknown coordinator event", zap.Any("event", evt))
	}
}

func (c *RoomCoordinator) stats() CoordinatorStats {
	stats := CoordinatorStats{
		Waiting:      c.queue.Len(),
		ActiveRooms:  c.rooms.Len(),
		RoomsByState: make(map[RoomState]int),
		Evaluations:  c.evaluations,
	}
	for _, room := range c.rooms.rooms {
		stats.RoomsByState[room.State]++
	}
	return stats
}

// onJoinQueue 매칭 시도. 상대가 없으면 대기열에 추가
func (c *RoomCoordinator) onJoinQueue(e joinQueueEvent) {
	req := e.req
	if req.Username == "" || req.Topic == "" {
		c.logger.Debug("Ignoring joinQueue without username or topic", zap.String("connectionId", e.connectionID))
		return
	}

	rating := req.rating()
	if rating <= 0 {
		rating = c.cfg.DefaultRating
	}

	candidate := WaitingEntry{
		ConnectionID: e.connectionID,
		Username:     req.Username,
		Topic:        req.Topic,
		Rating:       rating,
		QueuedAt:     c.now(),
	}

	// 같은 사용자의 이전 대기 항목은 새 요청으로 교체
	c.queue.Remove(candidate.Username)

	opponent, found := c.queue.FindMatch(candidate)
	if !found {
		c.queue.Enqueue(candidate)
		c.logger.Debug("User queued",
			zap.String("username", candidate.Username),
			zap.String("topic", candidate.Topic),
			zap.Int("rating", candidate.Rating),
			zap.Int("waiting", c.queue.Len()))
		return
	}

	c.queue.Remove(opponent.Username)

	room, err := c.rooms.Create(candidate.Topic, opponent, candidate)
	if err != nil {
		c.logger.Error("Failed to create room",
			zap.String("userA", opponent.Username),
			zap.String("userB", candidate.Username),
			zap.Error(err))
		c.queue.Enqueue(opponent)
		c.queue.Enqueue(candidate)
		return
	}

	c.notifier.Subscribe(room.ID, opponent.ConnectionID)
	c.notifier.Subscribe(room.ID, candidate.ConnectionID)
	c.notifier.Broadcast(room.ID, MsgRoomJoined, RoomJoinedPayload{RoomID: room.ID, Users: room.Users()})

	c.logger.Info("Room created",
		zap.String("roomId", room.ID),
		zap.String("topic", room.Topic),
		zap.Int("ratingA", opponent.Rating),
		zap.Int("ratingB", candidate.Rating))

	room.Transition(RoomQuestionPending)
	c.startQuestion(room)
}

func (c *RoomCoordinator) onLeaveQueue(e leaveQueueEvent) {
	if c.queue.Remove(e.req.Username) {
		c.logger.Debug("User left queue", zap.String("username", e.req.Username))
	}
}

// onJoinRoom 재접속한 연결을 방에 다시 연결하고 현재 상태 전송
func (c *RoomCoordinator) onJoinRoom(e joinRoomEvent) {
	room, ok := c.rooms.Get(e.req.RoomID)
	if !ok || room.State.Terminal() {
		return
	}
	p := room.Participant(e.req.Username)
	if p == nil {
		return
	}

	// 이전 연결은 더 이상 방 메시지를 받지 않는다
	if previous := p.ConnectionID; previous != e.connectionID {
		c.notifier.Unsubscribe(room.ID, previous)
	}
	c.rooms.Rebind(room.ID, p.Username, e.connectionID)
	c.notifier.Subscribe(room.ID, e.connectionID)
	c.notifier.SendTo(e.connectionID, MsgRoomJoined, RoomJoinedPayload{RoomID: room.ID, Users: room.Users()})

	if room.QuestionReady {
		c.notifier.SendTo(e.connectionID, MsgQuestionGenerated, QuestionPayload{
			RoomID:    room.ID,
			Question:  room.Question,
			Timestamp: c.now(),
		})
	}
	if opp := room.Opponent(p.Username); opp != nil && opp.Code != PlaceholderCode {
		c.notifier.SendTo(e.connectionID, MsgOpponentCodeChange, CodePayload{Code: opp.Code})
	}

	c.logger.Info("Participant rejoined room",
		zap.String("roomId", room.ID),
		zap.String("username", p.Username))
}

// boundParticipant 방이 살아 있고 요청 연결이 해당 참가자에 연결된 경우에만 반환
func (c *RoomCoordinator) boundParticipant(roomID, username, connectionID string) (*Room, *Participant) {
	room, ok := c.rooms.Get(roomID)
	if !ok || room.State.Terminal() {
		return nil, nil
	}
	p := room.Participant(username)
	if p == nil || p.ConnectionID != connectionID {
		return nil, nil
	}
	return room, p
}

func (c *RoomCoordinator) onCodeChange(e codeChangeEvent) {
	room, p := c.boundParticipant(e.req.RoomID, e.req.Username, e.connectionID)
	if room == nil {
		c.logger.Debug("Ignoring codeChange for unknown room", zap.String("roomId", e.req.RoomID))
		return
	}
	if room.State != RoomQuestionPending && room.State != RoomInProgress {
		return
	}
	if c.cfg.MaxCodeBytes > 0 && len(e.req.Code) > c.cfg.MaxCodeBytes {
		c.logger.Warn("Dropping oversized code change",
			zap.String("roomId", room.ID),
			zap.String("username", p.Username),
			zap.Int("bytes", len(e.req.Code)))
		return
	}

	c.rooms.UpdateCode(room.ID, p.Username, e.req.Code)
	if opp := room.Opponent(p.Username); opp != nil {
		c.notifier.SendTo(opp.ConnectionID, MsgOpponentCodeChange, CodePayload{Code: e.req.Code})
	}
}

func (c *RoomCoordinator) onSubmit(e submitEvent) {
	room, p := c.boundParticipant(e.req.RoomID, e.req.Username, e.connectionID)
	if room == nil {
		return
	}
	if room.State != RoomInProgress {
		c.logger.Debug("Ignoring submit outside of battle",
			zap.String("roomId", room.ID),
			zap.String("state", string(room.State)))
		return
	}

	result := c.rooms.MarkSubmitted(room.ID, p.Username)
	if !result.Changed {
		return
	}

	opp := room.Participant(result.Opponent)
	c.notifier.SendTo(opp.ConnectionID, MsgOpponentSubmitted, OpponentSubmittedPayload{Username: p.Username})

	if !result.BothSubmitted {
		c.notifier.SendTo(p.ConnectionID, MsgStatusUpdate, MessagePayload{Message: waitingForOpponentMessage})
		return
	}

	room.Transition(RoomEvaluating)
	c.startEvaluation(room)
}

func (c *RoomCoordinator) onGenerateQuestion(e generateQuestionEvent) {
	room, _ := c.boundParticipant(e.req.RoomID, e.req.Username, e.connectionID)
	if room == nil {
		return
	}
	if room.State != RoomQuestionPending || room.generating {
		return
	}
	c.startQuestion(room)
}

// onDisconnect 대기열 정리 후 참가 중인 방을 모두 중단
func (c *RoomCoordinator) onDisconnect(e disconnectEvent) {
	if n := c.queue.RemoveByConnection(e.connectionID); n > 0 {
		c.logger.Debug("Removed disconnected user from queue", zap.String("connectionId", e.connectionID))
	}

	for _, room := range c.rooms.FindByConnection(e.connectionID) {
		p := room.ParticipantByConnection(e.connectionID)
		if opp := room.Opponent(p.Username); opp != nil {
			c.notifier.SendTo(opp.ConnectionID, MsgOpponentDisconnected, MessagePayload{Message: opponentDisconnectedMessage})
		}

		c.logger.Info("Participant disconnected",
			zap.String("roomId", room.ID),
			zap.String("username", p.Username),
			zap.String("state", string(room.State)))

		c.finish(room, RoomAborted)
	}
}

// startQuestion 문제 생성 요청. 이전 요청의 결과는 attempt로 구분해 버린다.
func (c *RoomCoordinator) startQuestion(room *Room) {
	room.questionAttempt++
	room.generating = true

	roomID := room.ID
	attempt := room.questionAttempt
	users := [2]string{room.UserA, room.UserB}
	snapshots := [2]int{room.Participants[room.UserA].RatingSnapshot, room.Participants[room.UserB].RatingSnapshot}

	c.spawn(func() {
		ctx, cancel := context.WithTimeout(c.ctx, c.cfg.QuestionTimeout)
		defer cancel()

		ratings := c.readRatings(ctx, users, snapshots)
		average := float64(ratings[0]+ratings[1]) / 2

		question, err := c.questions.GenerateQuestion(ctx, average)
		if err == nil && strings.TrimSpace(question) == "" {
			err = ErrEmptyQuestion
		}

		_ = c.post(questionResultEvent{
			roomID:        roomID,
			attempt:       attempt,
			question:      question,
			averageRating: average,
			err:           err,
		})
	})
}

func (c *RoomCoordinator) onQuestionResult(e questionResultEvent) {
	room, ok := c.rooms.Get(e.roomID)
	if !ok || room.State != RoomQuestionPending || e.attempt != room.questionAttempt {
		c.logger.Debug("Discarding stale question result", zap.String("roomId", e.roomID))
		return
	}
	room.generating = false

	if e.err != nil {
		c.logger.Warn("Question generation failed", zap.String("roomId", room.ID), zap.Error(e.err))
		c.notifier.Broadcast(room.ID, MsgQuestionError, QuestionErrorPayload{Error: questionErrorMessage})
		return
	}

	room.Question = e.question
	room.QuestionReady = true
	room.AverageRating = e.averageRating
	room.Transition(RoomInProgress)

	c.notifier.Broadcast(room.ID, MsgQuestionGenerated, QuestionPayload{
		RoomID:    room.ID,
		Question:  room.Question,
		Timestamp: c.now(),
	})
}

// startEvaluation 방마다 한 번만 호출된다 (IN_PROGRESS -> EVALUATING 전이 직후)
func (c *RoomCoordinator) startEvaluation(room *Room) {
	c.evaluations++

	roomID := room.ID
	question := room.Question
	users := [2]string{room.UserA, room.UserB}
	codes := [2]string{room.Participants[room.UserA].Code, room.Participants[room.UserB].Code}
	snapshots := [2]int{room.Participants[room.UserA].RatingSnapshot, room.Participants[room.UserB].RatingSnapshot}

	c.logger.Info("Evaluating battle", zap.String("roomId", roomID))

	c.spawn(func() {
		ctx, cancel := context.WithTimeout(c.ctx, c.cfg.EvaluationTimeout)
		defer cancel()

		ratings := c.readRatings(ctx, users, snapshots)
		raw, err := c.evaluator.Evaluate(ctx, question, codes[0], codes[1])

		_ = c.post(evaluationResultEvent{
			roomID:  roomID,
			raw:     raw,
			ratings: ratings,
			err:     err,
		})
	})
}

func (c *RoomCoordinator) onEvaluationResult(e evaluationResultEvent) {
	room, ok := c.rooms.Get(e.roomID)
	if !ok || room.State != RoomEvaluating {
		c.logger.Debug("Discarding stale evaluation result", zap.String("roomId", e.roomID))
		return
	}

	if e.err != nil {
		c.logger.Warn("Evaluation failed", zap.String("roomId", room.ID), zap.Error(e.err))
		c.notifier.Broadcast(room.ID, MsgEvaluationError, MessagePayload{Message: evaluationErrorMessage})
		c.finish(room, RoomAborted)
		return
	}

	parsed := ParseEvaluation(e.raw)

	var results [2]UserEvaluation
	payload := EvaluationCompletePayload{RoomID: room.ID, Results: make(map[string]UserEvaluation, 2)}
	for i, username := range room.Users() {
		newRating, change := c.cfg.Policy.Apply(e.ratings[i], parsed.Increments[i])
		results[i] = UserEvaluation{
			Username:  username,
			OldRating: e.ratings[i],
			NewRating: newRating,
			Increment: change,
			Analysis:  parsed.Analyses[i],
		}
		payload.Results[username] = results[i]
	}

	c.notifier.Broadcast(room.ID, MsgEvaluationComplete, payload)

	snap := snapshotRoom(room)
	endedAt := c.now()
	c.finish(room, RoomArchived)

	c.persistRatings(results)
	c.dispatchArchive(snap, results, endedAt)
}

// finish 종료 상태로 전이하고 방 제거
func (c *RoomCoordinator) finish(room *Room, state RoomState) {
	if !room.Transition(state) {
		return
	}
	c.notifier.CloseGroup(room.ID)
	c.rooms.Destroy(room.ID)

	c.logger.Info("Room closed",
		zap.String("roomId", room.ID),
		zap.String("state", string(state)),
		zap.Int("activeRooms", c.rooms.Len()))
}

// readRatings 저장소 조회 실패 시 매칭 시점 레이팅 사용
func (c *RoomCoordinator) readRatings(ctx context.Context, users [2]string, snapshots [2]int) [2]int {
	ratings := snapshots
	if c.ratings == nil {
		return ratings
	}
	for i, username := range users {
		rating, err := c.ratings.GetRating(ctx, username)
		if err != nil {
			c.logger.Warn("Failed to read rating, using snapshot",
				zap.String("username", username),
				zap.Int("snapshot", snapshots[i]),
				zap.Error(err))
			continue
		}
		ratings[i] = rating
	}
	return ratings
}

// persistRatings 방 종료와 무관하게 새 레이팅 저장
func (c *RoomCoordinator) persistRatings(results [2]UserEvaluation) {
	if c.ratings == nil {
		return
	}

	c.spawn(func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), c.cfg.PersistTimeout)
		defer cancel()

		for _, r := range results {
			if err := c.ratings.SetRating(ctx, r.Username, r.NewRating); err != nil {
				c.logger.Error("Failed to update rating",
					zap.String("username", r.Username),
					zap.Int("rating", r.NewRating),
					zap.Error(err))
			}
		}
	})
}

// dispatchArchive 스냅샷으로 기록을 만들어 보관 작업에 넘김
func (c *RoomCoordinator) dispatchArchive(snap battleSnapshot, results [2]UserEvaluation, endedAt time.Time) {
	if c.archiver == nil {
		return
	}

	c.spawn(func() {
		record, err := buildBattleRecord(snap, results, endedAt)
		if err != nil {
			c.logger.Error("Failed to build battle record", zap.String("roomId", snap.RoomID), zap.Error(err))
			return
		}
		c.archiver.Dispatch(record)
	})
}
