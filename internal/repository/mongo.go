package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/schoolerp/gamification/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Mongo collection names.
const (
	collUserPoints   = "userPoints"
	collActivityLogs = "activityLogs"
	collAchievements = "userAchievements"
	collChallenges   = "userChallenges"
)

// MongoStore is the MongoDB-backed Store. Counters use $inc with upsert and
// return the post-update document, so each increment is atomic per record.
// Writes that span documents run in a session transaction when the
// deployment supports one, and fall back to compensating writes otherwise.
type MongoStore struct {
	db   *mongo.Database
	txns bool
}

// NewMongoStore returns a Store over the given database.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

type activityDoc struct {
	ID          string    `bson:"_id"`
	UserID      string    `bson:"userId"`
	ActionType  string    `bson:"actionType"`
	Description string    `bson:"description"`
	Points      int       `bson:"points"`
	Metadata    bson.M    `bson:"metadata"`
	Timestamp   time.Time `bson:"timestamp"`
}

// EnsureIndexes creates the unique keys the upserts rely on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	specs := map[string][]mongo.IndexModel{
		collUserPoints: {
			{Keys: bson.D{{Key: "userId", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "totalPoints", Value: -1}}},
		},
		collActivityLogs: {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "timestamp", Value: -1}}},
		},
		collAchievements: {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "achievementId", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		collChallenges: {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "challengeId", Value: 1}, {Key: "deadline", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "deadline", Value: 1}}},
		},
	}
	for coll, models := range specs {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", coll, err)
		}
	}
	return nil
}

// DetectTransactions enables multi-document transactions when the server is
// a replica set member or a mongos router.
func (s *MongoStore) DetectTransactions(ctx context.Context) (bool, error) {
	var hello struct {
		SetName string `bson:"setName"`
		Msg     string `bson:"msg"`
	}
	if err := s.db.RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello); err != nil {
		return false, fmt.Errorf("hello: %w", err)
	}
	s.txns = hello.SetName != "" || hello.Msg == "isdbgrid"
	return s.txns, nil
}

func (s *MongoStore) inTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	sess, err := s.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// AddPoints increments the total and appends the activity entry. Without
// transactions the entry is written first and removed again when the
// increment fails.
func (s *MongoStore) AddPoints(ctx context.Context, userID string, delta int, at time.Time, entry *domain.ActivityEntry) (int, error) {
	var doc *activityDoc
	if entry != nil {
		meta, err := metadataToBSON(entry.Metadata)
		if err != nil {
			return 0, err
		}
		doc = &activityDoc{
			ID:          entry.ID.String(),
			UserID:      entry.UserID,
			ActionType:  entry.ActionType,
			Description: entry.Description,
			Points:      entry.Points,
			Metadata:    meta,
			Timestamp:   entry.Timestamp,
		}
	}

	if s.txns {
		var total int
		err := s.inTransaction(ctx, func(tctx context.Context) error {
			if err := s.insertActivity(tctx, doc); err != nil {
				return err
			}
			var err error
			total, err = s.incPoints(tctx, userID, delta, at)
			return err
		})
		if err != nil {
			return 0, err
		}
		return total, nil
	}

	if err := s.insertActivity(ctx, doc); err != nil {
		return 0, err
	}
	total, err := s.incPoints(ctx, userID, delta, at)
	if err != nil {
		if doc != nil {
			if _, derr := s.db.Collection(collActivityLogs).DeleteOne(ctx, bson.M{"_id": doc.ID}); derr != nil {
				err = errors.Join(err, fmt.Errorf("remove activity: %w", derr))
			}
		}
		return 0, err
	}
	return total, nil
}

func (s *MongoStore) insertActivity(ctx context.Context, doc *activityDoc) error {
	if doc == nil {
		return nil
	}
	if _, err := s.db.Collection(collActivityLogs).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (s *MongoStore) incPoints(ctx context.Context, userID string, delta int, at time.Time) (int, error) {
	var rec domain.UserPoints
	err := s.db.Collection(collUserPoints).FindOneAndUpdate(ctx,
		bson.M{"userId": userID},
		bson.M{
			"$inc":         bson.M{"totalPoints": delta},
			"$set":         bson.M{"lastActivity": at},
			"$setOnInsert": bson.M{"createdAt": at},
		},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&rec)
	if err != nil {
		return 0, fmt.Errorf("upsert user points: %w", err)
	}
	return rec.TotalPoints, nil
}

func (s *MongoStore) IncrementProgress(ctx context.Context, key domain.ProgressKey, at time.Time) (domain.Progress, error) {
	p := domain.Progress{Key: key}
	coll, filter, err := s.progressFilter(key)
	if err != nil {
		return p, err
	}
	if key.Kind == domain.KindChallenge && !key.Deadline.After(at) {
		return p, ErrWindowClosed
	}

	var doc struct {
		Progress    int        `bson:"progress"`
		Completed   bool       `bson:"completed"`
		CompletedAt *time.Time `bson:"completedAt,omitempty"`
	}
	err = s.db.Collection(coll).FindOneAndUpdate(ctx, filter,
		bson.M{
			"$inc":         bson.M{"progress": 1},
			"$set":         bson.M{"updatedAt": at},
			"$setOnInsert": bson.M{"completed": false},
		},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return p, fmt.Errorf("increment %s %s: %w", key.Kind, key.ID, err)
	}
	p.Progress = doc.Progress
	p.Completed = doc.Completed
	p.CompletedAt = doc.CompletedAt
	return p, nil
}

// CompleteAndCredit marks the record completed and credits the bonus.
// Without transactions a failed credit reverts the completion so a later
// action can award the bonus.
func (s *MongoStore) CompleteAndCredit(ctx context.Context, key domain.ProgressKey, bonus int, at time.Time) (bool, int, error) {
	coll, filter, err := s.progressFilter(key)
	if err != nil {
		return false, 0, err
	}

	complete := func(ctx context.Context) (bool, int, error) {
		open := bson.M{"completed": false}
		for k, v := range filter {
			open[k] = v
		}
		res, err := s.db.Collection(coll).UpdateOne(ctx, open, bson.M{
			"$set": bson.M{"completed": true, "completedAt": at, "updatedAt": at},
		})
		if err != nil {
			return false, 0, fmt.Errorf("mark %s %s completed: %w", key.Kind, key.ID, err)
		}
		if res.ModifiedCount != 1 {
			return false, 0, nil
		}
		total, err := s.incPoints(ctx, key.UserID, bonus, at)
		return true, total, err
	}

	if s.txns {
		var (
			applied bool
			total   int
		)
		err := s.inTransaction(ctx, func(tctx context.Context) error {
			var err error
			applied, total, err = complete(tctx)
			return err
		})
		if err != nil {
			return false, 0, err
		}
		return applied, total, nil
	}

	applied, total, err := complete(ctx)
	if err != nil && applied {
		done := bson.M{"completed": true, "completedAt": at}
		for k, v := range filter {
			done[k] = v
		}
		_, rerr := s.db.Collection(coll).UpdateOne(ctx, done, bson.M{
			"$set":   bson.M{"completed": false},
			"$unset": bson.M{"completedAt": ""},
		})
		if rerr != nil {
			err = errors.Join(err, fmt.Errorf("revert %s %s completion: %w", key.Kind, key.ID, rerr))
		}
		return false, 0, err
	}
	return applied, total, err
}

func (s *MongoStore) GetPoints(ctx context.Context, userID string) (*domain.UserPoints, error) {
	var rec domain.UserPoints
	err := s.db.Collection(collUserPoints).FindOne(ctx, bson.M{"userId": userID}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user points: %w", err)
	}
	return &rec, nil
}

func (s *MongoStore) ListActivity(ctx context.Context, userID string, limit int) ([]domain.ActivityEntry, error) {
	cur, err := s.db.Collection(collActivityLogs).Find(ctx,
		bson.M{"userId": userID},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(int64(ClampLimit(limit))),
	)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	var docs []activityDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode activity: %w", err)
	}

	out := make([]domain.ActivityEntry, 0, len(docs))
	for _, d := range docs {
		id, _ := uuid.Parse(d.ID)
		meta, err := metadataToJSON(d.Metadata)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.ActivityEntry{
			ID:          id,
			UserID:      d.UserID,
			ActionType:  d.ActionType,
			Description: d.Description,
			Points:      d.Points,
			Metadata:    meta,
			Timestamp:   d.Timestamp,
		})
	}
	return out, nil
}

func (s *MongoStore) ListAchievements(ctx context.Context, userID string) ([]domain.AchievementProgress, error) {
	cur, err := s.db.Collection(collAchievements).Find(ctx,
		bson.M{"userId": userID},
		options.Find().SetSort(bson.D{{Key: "achievementId", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	var out []domain.AchievementProgress
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode achievements: %w", err)
	}
	return out, nil
}

func (s *MongoStore) ListChallenges(ctx context.Context, userID string, activeAt time.Time) ([]domain.ChallengeProgress, error) {
	cur, err := s.db.Collection(collChallenges).Find(ctx,
		bson.M{"userId": userID, "deadline": bson.M{"$gt": activeAt}},
		options.Find().SetSort(bson.D{{Key: "challengeId", Value: 1}, {Key: "deadline", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("list challenges: %w", err)
	}
	var out []domain.ChallengeProgress
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode challenges: %w", err)
	}
	return out, nil
}

func (s *MongoStore) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	cur, err := s.db.Collection(collUserPoints).Find(ctx, bson.M{},
		options.Find().
			SetSort(bson.D{{Key: "totalPoints", Value: -1}, {Key: "userId", Value: 1}}).
			SetLimit(int64(ClampLimit(limit))),
	)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	var recs []domain.UserPoints
	if err := cur.All(ctx, &recs); err != nil {
		return nil, fmt.Errorf("decode leaderboard: %w", err)
	}

	out := make([]domain.LeaderboardEntry, 0, len(recs))
	for i, r := range recs {
		out = append(out, domain.LeaderboardEntry{Rank: i + 1, UserID: r.UserID, TotalPoints: r.TotalPoints})
	}
	return out, nil
}

func (s *MongoStore) DeleteExpiredChallenges(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.Collection(collChallenges).DeleteMany(ctx, bson.M{"deadline": bson.M{"$lt": before}})
	if err != nil {
		return 0, fmt.Errorf("delete expired challenges: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.db.Client().Ping(ctx, readpref.Primary())
}

func (s *MongoStore) progressFilter(key domain.ProgressKey) (string, bson.M, error) {
	switch key.Kind {
	case domain.KindAchievement:
		return collAchievements, bson.M{"userId": key.UserID, "achievementId": key.ID}, nil
	case domain.KindChallenge:
		return collChallenges, bson.M{"userId": key.UserID, "challengeId": key.ID, "deadline": key.Deadline}, nil
	default:
		return "", nil, fmt.Errorf("unknown progress kind %q", key.Kind)
	}
}

func metadataToBSON(raw json.RawMessage) (bson.M, error) {
	m := bson.M{}
	if len(raw) == 0 {
		return m, nil
	}
	if err := bson.UnmarshalExtJSON(raw, false, &m); err != nil {
		return nil, fmt.Errorf("convert metadata: %w", err)
	}
	return m, nil
}

func metadataToJSON(m bson.M) (json.RawMessage, error) {
	if len(m) == 0 {
		return json.RawMessage(`{}`), nil
	}
	out, err := bson.MarshalExtJSON(m, false, false)
	if err != nil {
		return nil, fmt.Errorf("convert metadata: %w", err)
	}
	return out, nil
}
