package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/kamisado-backend/internal/apperror"
	"github.com/rocketscienceinc/kamisado-backend/internal/entity"
	"github.com/rocketscienceinc/kamisado-backend/internal/repository/storage"
)

const activeMatchesKey = "matches:active"

// MatchRepository - Matches and their append-only Moves.
type MatchRepository interface {
	Create(ctx context.Context, match *entity.Match) error
	// Transition - overwrites the match if its stored status is still from.
	Transition(ctx context.Context, match *entity.Match, from entity.MatchStatus) error
	// Head - the match and its latest move (nil without moves) in one read.
	Head(ctx context.Context, matchID string) (*entity.Match, *entity.Move, error)
	// Commit - appends move at move.Index and applies completion in the same atomic unit.
	// Only the registered writer may commit.
	Commit(ctx context.Context, writer string, move *entity.Move, completion *entity.Completion) error
	Move(ctx context.Context, matchID string, index int) (*entity.Move, error)
	Moves(ctx context.Context, matchID string) ([]*entity.Move, error)
	ActiveMatches(ctx context.Context) ([]string, error)
}

// KEYS: match, head, move, previous move, active set, writer
// ARGV: writer token, index, move json, completion json or "", match id
var commitScript = redis.NewScript(`
if redis.call('GET', KEYS[6]) ~= ARGV[1] then
	return redis.error_reply('WRITER rejected')
end
local raw = redis.call('GET', KEYS[1])
if not raw then
	return -2
end
local match = cjson.decode(raw)
if match.status ~= 'in_progress' then
	return -1
end
local index = tonumber(ARGV[2])
if index == 0 and redis.call('EXISTS', KEYS[2]) == 1 then
	return 0
end
if index > 0 and redis.call('EXISTS', KEYS[4]) == 0 then
	return 0
end
if not redis.call('SET', KEYS[3], ARGV[3], 'NX') then
	return 0
end
redis.call('SET', KEYS[2], index)
if ARGV[4] ~= '' then
	local completion = cjson.decode(ARGV[4])
	match.status = completion.status
	match.winner = completion.winner
	match.end_reason = completion.reason
	match.ended_at = completion.ended_at
	redis.call('SET', KEYS[1], cjson.encode(match))
	redis.call('SREM', KEYS[5], ARGV[5])
end
return 1
`)

// KEYS: match, head. ARGV: move key prefix
var headScript = redis.NewScript(`
local match = redis.call('GET', KEYS[1])
if not match then
	return false
end
local head = redis.call('GET', KEYS[2])
if not head then
	return {match}
end
return {match, redis.call('GET', ARGV[1] .. head)}
`)

// KEYS: match, active set. ARGV: expected status, match json, new status, match id
var transitionScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
	return -2
end
if cjson.decode(raw).status ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2])
if ARGV[3] == 'in_progress' then
	redis.call('SADD', KEYS[2], ARGV[4])
else
	redis.call('SREM', KEYS[2], ARGV[4])
end
return 1
`)

type dbMatch struct {
	client *redis.Client
}

func NewMatchRepository(client *redis.Client) MatchRepository {
	return &dbMatch{
		client: client,
	}
}

func (that *dbMatch) Create(ctx context.Context, match *entity.Match) error {
	matchJSON, err := json.Marshal(match)
	if err != nil {
		return fmt.Errorf("could not marshal match: %w", err)
	}

	created, err := that.client.SetNX(ctx, matchKey(match.ID), matchJSON, 0).Result()
	if err != nil {
		return persistenceFailure("failed to create match", err)
	}

	if !created {
		return fmt.Errorf("%w: match %s already exists", apperror.ErrStatusConflict, match.ID)
	}

	return nil
}

func (that *dbMatch) Transition(ctx context.Context, match *entity.Match, from entity.MatchStatus) error {
	matchJSON, err := json.Marshal(match)
	if err != nil {
		return fmt.Errorf("could not marshal match: %w", err)
	}

	keys := []string{matchKey(match.ID), activeMatchesKey}
	result, err := transitionScript.Run(ctx, that.client, keys, string(from), matchJSON, string(match.Status), match.ID).Int()
	if err != nil {
		return persistenceFailure("failed to transition match", err)
	}

	switch result {
	case -2:
		return apperror.ErrMatchNotFound
	case 0:
		return fmt.Errorf("%w: expected %s", apperror.ErrStatusConflict, from)
	default:
		return nil
	}
}

func (that *dbMatch) Head(ctx context.Context, matchID string) (*entity.Match, *entity.Move, error) {
	keys := []string{matchKey(matchID), headKey(matchID)}

	values, err := headScript.Run(ctx, that.client, keys, moveKeyPrefix(matchID)).StringSlice()
	if errors.Is(err, redis.Nil) {
		return nil, nil, apperror.ErrMatchNotFound
	}

	if err != nil {
		return nil, nil, persistenceFailure("failed to read match head", err)
	}

	var match entity.Match
	if err = json.Unmarshal([]byte(values[0]), &match); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal match: %w", err)
	}

	if len(values) < 2 || values[1] == "" {
		return &match, nil, nil
	}

	var move entity.Move
	if err = json.Unmarshal([]byte(values[1]), &move); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal move: %w", err)
	}

	return &match, &move, nil
}

func (that *dbMatch) Commit(ctx context.Context, writer string, move *entity.Move, completion *entity.Completion) error {
	moveJSON, err := json.Marshal(move)
	if err != nil {
		return fmt.Errorf("could not marshal move: %w", err)
	}

	var completionJSON []byte
	if completion != nil {
		if completionJSON, err = json.Marshal(completion); err != nil {
			return fmt.Errorf("could not marshal completion: %w", err)
		}
	}

	keys := []string{
		matchKey(move.MatchID),
		headKey(move.MatchID),
		moveKey(move.MatchID, move.Index),
		moveKey(move.MatchID, move.Index-1),
		activeMatchesKey,
		storage.WriterKey,
	}

	result, err := commitScript.Run(ctx, that.client, keys, writer, move.Index, moveJSON, completionJSON, move.MatchID).Int()
	if err != nil {
		if strings.Contains(err.Error(), "WRITER") {
			return apperror.ErrWriterRejected
		}

		return persistenceFailure("failed to commit move", err)
	}

	switch result {
	case -2:
		return apperror.ErrMatchNotFound
	case -1:
		return apperror.ErrMatchFinished
	case 0:
		return fmt.Errorf("%w: index %d is taken or out of sequence", apperror.ErrStaleIndex, move.Index)
	default:
		return nil
	}
}

func (that *dbMatch) Move(ctx context.Context, matchID string, index int) (*entity.Move, error) {
	response, err := that.client.Get(ctx, moveKey(matchID, index)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, apperror.ErrMoveNotFound
	}

	if err != nil {
		return nil, persistenceFailure("failed to get move", err)
	}

	var move entity.Move
	if err = json.Unmarshal([]byte(response), &move); err != nil {
		return nil, fmt.Errorf("failed to unmarshal move: %w", err)
	}

	return &move, nil
}

func (that *dbMatch) Moves(ctx context.Context, matchID string) ([]*entity.Move, error) {
	head, err := that.client.Get(ctx, headKey(matchID)).Int()
	if errors.Is(err, redis.Nil) {
		return []*entity.Move{}, nil
	}

	if err != nil {
		return nil, persistenceFailure("failed to get head index", err)
	}

	keys := make([]string, 0, head+1)
	for i := 0; i <= head; i++ {
		keys = append(keys, moveKey(matchID, i))
	}

	values, err := that.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, persistenceFailure("failed to get moves", err)
	}

	moves := make([]*entity.Move, 0, len(values))
	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: missing move in history of %s", apperror.ErrPersistenceFailure, matchID)
		}

		var move entity.Move
		if err = json.Unmarshal([]byte(raw), &move); err != nil {
			return nil, fmt.Errorf("failed to unmarshal move: %w", err)
		}

		moves = append(moves, &move)
	}

	return moves, nil
}

func (that *dbMatch) ActiveMatches(ctx context.Context) ([]string, error) {
	ids, err := that.client.SMembers(ctx, activeMatchesKey).Result()
	if err != nil {
		return nil, persistenceFailure("failed to list active matches", err)
	}

	return ids, nil
}

func persistenceFailure(msg string, err error) error {
	return fmt.Errorf("%s: %w: %w", msg, apperror.ErrPersistenceFailure, err)
}

func matchKey(matchID string) string {
	return "match:" + matchID
}

func headKey(matchID string) string {
	return "match:" + matchID + ":head"
}

func moveKeyPrefix(matchID string) string {
	return "match:" + matchID + ":move:"
}

func moveKey(matchID string, index int) string {
	return moveKeyPrefix(matchID) + strconv.Itoa(index)
}
