package store

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"storyboard/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(
		&UserModel{},
		&ProjectModel{},
		&SceneModel{},
		&ScriptModel{},
		&GenerationJobModel{},
		&SubscriptionModel{},
		&CreditTransactionModel{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "name", "password_hash", "credits", "tier", "updated_at"}),
	}).Create(&model).Error
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// AdjustCredits applies a signed delta under a row lock. A debit that would
// drive the balance negative rolls back with ErrInsufficientCredits.
func (s *GormStore) AdjustCredits(userID string, delta int) (int, error) {
	var balance int
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var model UserModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&model, "id = ?", userID).Error; err != nil {
			return err
		}
		next := model.Credits + delta
		if next < 0 {
			return ErrInsufficientCredits
		}
		if err := tx.Model(&UserModel{}).Where("id = ?", userID).
			Updates(map[string]any{
				"credits":    next,
				"updated_at": time.Now().UTC(),
			}).Error; err != nil {
			return err
		}
		balance = next
		return nil
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// SaveProject stores or updates a project.
func (s *GormStore) SaveProject(p domain.Project) error {
	model := projectToModel(p)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "description", "thumbnail_url", "status", "updated_at"}),
	}).Create(&model).Error
}

// GetProject retrieves a project.
func (s *GormStore) GetProject(id string) (domain.Project, bool, error) {
	var model ProjectModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Project{}, false, nil
		}
		return domain.Project{}, false, err
	}
	return projectFromModel(model), true, nil
}

// ListProjectsByOwner returns projects for a user, newest first.
func (s *GormStore) ListProjectsByOwner(userID string) ([]domain.Project, error) {
	var models []ProjectModel
	if err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Project, 0, len(models))
	for _, m := range models {
		res = append(res, projectFromModel(m))
	}
	return res, nil
}

// DeleteProject removes a project and its scenes.
func (s *GormStore) DeleteProject(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&SceneModel{}, "project_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&ProjectModel{}, "id = ?", id).Error
	})
}

// CreateScene assigns the next scene number within the project atomically.
// The project row is locked so concurrent creates serialize.
func (s *GormStore) CreateScene(scene domain.Scene) (domain.Scene, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var project ProjectModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&project, "id = ?", scene.ProjectID).Error; err != nil {
			return err
		}
		var max int
		if err := tx.Model(&SceneModel{}).
			Where("project_id = ?", scene.ProjectID).
			Select("COALESCE(MAX(scene_number), 0)").
			Scan(&max).Error; err != nil {
			return err
		}
		scene.SceneNumber = max + 1
		model := sceneToModel(scene)
		return tx.Create(&model).Error
	})
	if err != nil {
		return domain.Scene{}, err
	}
	return scene, nil
}

// SaveScene updates a scene in place.
func (s *GormStore) SaveScene(scene domain.Scene) error {
	model := sceneToModel(scene)
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "description", "dialogue", "characters", "location",
			"time_of_day", "camera_angle", "style", "aspect_ratio",
			"image_url", "prompt", "negative_prompt", "status", "metadata",
			"updated_at",
		}),
	}).Create(&model).Error
}

// GetScene retrieves a scene.
func (s *GormStore) GetScene(id string) (domain.Scene, bool, error) {
	var model SceneModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Scene{}, false, nil
		}
		return domain.Scene{}, false, err
	}
	return sceneFromModel(model), true, nil
}

// ListScenesByProject returns scenes ordered by scene number.
func (s *GormStore) ListScenesByProject(projectID string) ([]domain.Scene, error) {
	var models []SceneModel
	if err := s.db.Where("project_id = ?", projectID).
		Order("scene_number ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Scene, 0, len(models))
	for _, m := range models {
		res = append(res, sceneFromModel(m))
	}
	return res, nil
}

// DeleteScene removes a scene. Remaining scene numbers keep their gaps.
func (s *GormStore) DeleteScene(id string) error {
	return s.db.Delete(&SceneModel{}, "id = ?", id).Error
}

// SetSceneStatus updates scene status and, when non-empty, the image URL.
func (s *GormStore) SetSceneStatus(id string, status domain.SceneStatus, imageURL string) error {
	updates := map[string]any{
		"status":     string(status),
		"updated_at": time.Now().UTC(),
	}
	if imageURL != "" {
		updates["image_url"] = imageURL
	}
	return s.db.Model(&SceneModel{}).Where("id = ?", id).Updates(updates).Error
}

// SaveScript stores or updates a script record.
func (s *GormStore) SaveScript(sc domain.Script) error {
	model := scriptToModel(sc)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "error_message", "parsed_scenes"}),
	}).Create(&model).Error
}

// GetScript retrieves a script.
func (s *GormStore) GetScript(id string) (domain.Script, bool, error) {
	var model ScriptModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Script{}, false, nil
		}
		return domain.Script{}, false, err
	}
	return scriptFromModel(model), true, nil
}

// ListScriptsByOwner returns scripts for a user, newest first.
func (s *GormStore) ListScriptsByOwner(userID string) ([]domain.Script, error) {
	var models []ScriptModel
	if err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Script, 0, len(models))
	for _, m := range models {
		res = append(res, scriptFromModel(m))
	}
	return res, nil
}

// DeleteScript removes a script record.
func (s *GormStore) DeleteScript(id string) error {
	return s.db.Delete(&ScriptModel{}, "id = ?", id).Error
}

// SaveJob stores a generation job.
func (s *GormStore) SaveJob(j domain.GenerationJob) error {
	model := jobToModel(j)
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "image_url", "error_message", "attempts",
			"started_at", "completed_at",
		}),
	}).Create(&model).Error
}

// GetJob retrieves a generation job.
func (s *GormStore) GetJob(id string) (domain.GenerationJob, bool, error) {
	var model GenerationJobModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.GenerationJob{}, false, nil
		}
		return domain.GenerationJob{}, false, err
	}
	return jobFromModel(model), true, nil
}

// ListJobsByUser returns a user's jobs, newest first.
func (s *GormStore) ListJobsByUser(userID string, limit int) ([]domain.GenerationJob, error) {
	if limit <= 0 {
		limit = 50
	}
	var models []GenerationJobModel
	if err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.GenerationJob, 0, len(models))
	for _, m := range models {
		res = append(res, jobFromModel(m))
	}
	return res, nil
}

// TransitionJob performs a guarded status change. The WHERE clause on the
// current status makes the transition race-safe: a second caller sees zero
// rows affected and gets false.
func (s *GormStore) TransitionJob(id string, from, to domain.JobStatus, tr JobTransition) (bool, error) {
	updates := map[string]any{"status": string(to)}
	if tr.ImageURL != "" {
		updates["image_url"] = tr.ImageURL
	}
	if tr.ErrorMessage != "" {
		updates["error_message"] = tr.ErrorMessage
	}
	if tr.StartedAt != nil {
		updates["started_at"] = tr.StartedAt.UTC()
	}
	if tr.CompletedAt != nil {
		updates["completed_at"] = tr.CompletedAt.UTC()
	}
	if tr.AddAttempt {
		updates["attempts"] = gorm.Expr("attempts + 1")
	}
	res := s.db.Model(&GenerationJobModel{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SaveSubscription stores or updates a subscription.
func (s *GormStore) SaveSubscription(sub domain.Subscription) error {
	model := subscriptionToModel(sub)
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"stripe_subscription_id", "stripe_customer_id", "tier", "status",
			"current_period_start", "current_period_end",
			"cancel_at_period_end", "updated_at",
		}),
	}).Create(&model).Error
}

// GetSubscriptionByUser returns the subscription for a user, if any.
func (s *GormStore) GetSubscriptionByUser(userID string) (domain.Subscription, bool, error) {
	var model SubscriptionModel
	if err := s.db.Where("user_id = ?", userID).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Subscription{}, false, nil
		}
		return domain.Subscription{}, false, err
	}
	return subscriptionFromModel(model), true, nil
}

// AppendCreditTransaction records a ledger entry.
func (s *GormStore) AppendCreditTransaction(tx domain.CreditTransaction) error {
	model := creditTxToModel(tx)
	return s.db.Create(&model).Error
}

// ListCreditTransactionsByUser returns ledger entries, newest first.
func (s *GormStore) ListCreditTransactionsByUser(userID string, limit int) ([]domain.CreditTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	var models []CreditTransactionModel
	if err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.CreditTransaction, 0, len(models))
	for _, m := range models {
		res = append(res, creditTxFromModel(m))
	}
	return res, nil
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		Credits:      u.Credits,
		Tier:         string(u.Tier),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	tier := domain.SubscriptionTier(m.Tier)
	if tier == "" {
		tier = domain.TierFree
	}
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		Name:         m.Name,
		PasswordHash: m.PasswordHash,
		Credits:      m.Credits,
		Tier:         tier,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func projectToModel(p domain.Project) ProjectModel {
	return ProjectModel{
		ID:           p.ID,
		UserID:       p.UserID,
		Title:        p.Title,
		Description:  p.Description,
		ThumbnailURL: p.ThumbnailURL,
		Status:       string(p.Status),
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func projectFromModel(m ProjectModel) domain.Project {
	return domain.Project{
		ID:           m.ID,
		UserID:       m.UserID,
		Title:        m.Title,
		Description:  m.Description,
		ThumbnailURL: m.ThumbnailURL,
		Status:       domain.ProjectStatus(m.Status),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func sceneToModel(sc domain.Scene) SceneModel {
	characters, _ := json.Marshal(sc.Characters)
	meta, _ := json.Marshal(sc.Metadata)
	return SceneModel{
		ID:             sc.ID,
		ProjectID:      sc.ProjectID,
		SceneNumber:    sc.SceneNumber,
		Title:          sc.Title,
		Description:    sc.Description,
		Dialogue:       sc.Dialogue,
		Characters:     characters,
		Location:       sc.Location,
		TimeOfDay:      sc.TimeOfDay,
		CameraAngle:    sc.CameraAngle,
		Style:          sc.Style,
		AspectRatio:    sc.AspectRatio,
		ImageURL:       sc.ImageURL,
		Prompt:         sc.Prompt,
		NegativePrompt: sc.NegativePrompt,
		Status:         string(sc.Status),
		Metadata:       meta,
		CreatedAt:      sc.CreatedAt,
		UpdatedAt:      sc.UpdatedAt,
	}
}

func sceneFromModel(m SceneModel) domain.Scene {
	var characters []string
	if len(m.Characters) > 0 {
		_ = json.Unmarshal(m.Characters, &characters)
	}
	var meta map[string]string
	if len(m.Metadata) > 0 {
		_ = json.Unmarshal(m.Metadata, &meta)
	}
	return domain.Scene{
		ID:             m.ID,
		ProjectID:      m.ProjectID,
		SceneNumber:    m.SceneNumber,
		Title:          m.Title,
		Description:    m.Description,
		Dialogue:       m.Dialogue,
		Characters:     characters,
		Location:       m.Location,
		TimeOfDay:      m.TimeOfDay,
		CameraAngle:    m.CameraAngle,
		Style:          m.Style,
		AspectRatio:    m.AspectRatio,
		ImageURL:       m.ImageURL,
		Prompt:         m.Prompt,
		NegativePrompt: m.NegativePrompt,
		Status:         domain.SceneStatus(m.Status),
		Metadata:       meta,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func scriptToModel(sc domain.Script) ScriptModel {
	var parsed datatypes.JSON
	if len(sc.ParsedScenes) > 0 {
		parsed, _ = json.Marshal(sc.ParsedScenes)
	}
	return ScriptModel{
		ID:           sc.ID,
		UserID:       sc.UserID,
		Filename:     sc.Filename,
		FileType:     sc.FileType,
		FileSize:     sc.FileSize,
		StorageKey:   sc.StorageKey,
		Status:       string(sc.Status),
		ErrorMessage: sc.ErrorMessage,
		ParsedScenes: parsed,
		CreatedAt:    sc.CreatedAt,
	}
}

func scriptFromModel(m ScriptModel) domain.Script {
	var parsed []domain.SceneDraft
	if len(m.ParsedScenes) > 0 {
		_ = json.Unmarshal(m.ParsedScenes, &parsed)
	}
	return domain.Script{
		ID:           m.ID,
		UserID:       m.UserID,
		Filename:     m.Filename,
		FileType:     m.FileType,
		FileSize:     m.FileSize,
		StorageKey:   m.StorageKey,
		Status:       domain.ScriptStatus(m.Status),
		ErrorMessage: m.ErrorMessage,
		ParsedScenes: parsed,
		CreatedAt:    m.CreatedAt,
	}
}

func jobToModel(j domain.GenerationJob) GenerationJobModel {
	return GenerationJobModel{
		ID:             j.ID,
		SceneID:        j.SceneID,
		UserID:         j.UserID,
		Status:         string(j.Status),
		Prompt:         j.Prompt,
		NegativePrompt: j.NegativePrompt,
		Style:          j.Style,
		AspectRatio:    j.AspectRatio,
		ImageURL:       j.ImageURL,
		ErrorMessage:   j.ErrorMessage,
		Attempts:       j.Attempts,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
		CreatedAt:      j.CreatedAt,
	}
}

func jobFromModel(m GenerationJobModel) domain.GenerationJob {
	return domain.GenerationJob{
		ID:             m.ID,
		SceneID:        m.SceneID,
		UserID:         m.UserID,
		Status:         domain.JobStatus(m.Status),
		Prompt:         m.Prompt,
		NegativePrompt: m.NegativePrompt,
		Style:          m.Style,
		AspectRatio:    m.AspectRatio,
		ImageURL:       m.ImageURL,
		ErrorMessage:   m.ErrorMessage,
		Attempts:       m.Attempts,
		StartedAt:      m.StartedAt,
		CompletedAt:    m.CompletedAt,
		CreatedAt:      m.CreatedAt,
	}
}

func subscriptionToModel(sub domain.Subscription) SubscriptionModel {
	return SubscriptionModel{
		ID:                   sub.ID,
		UserID:               sub.UserID,
		StripeSubscriptionID: sub.StripeSubscriptionID,
		StripeCustomerID:     sub.StripeCustomerID,
		Tier:                 string(sub.Tier),
		Status:               sub.Status,
		CurrentPeriodStart:   sub.CurrentPeriodStart,
		CurrentPeriodEnd:     sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
		CreatedAt:            sub.CreatedAt,
		UpdatedAt:            sub.UpdatedAt,
	}
}

func subscriptionFromModel(m SubscriptionModel) domain.Subscription {
	return domain.Subscription{
		ID:                   m.ID,
		UserID:               m.UserID,
		StripeSubscriptionID: m.StripeSubscriptionID,
		StripeCustomerID:     m.StripeCustomerID,
		Tier:                 domain.SubscriptionTier(m.Tier),
		Status:               m.Status,
		CurrentPeriodStart:   m.CurrentPeriodStart,
		CurrentPeriodEnd:     m.CurrentPeriodEnd,
		CancelAtPeriodEnd:    m.CancelAtPeriodEnd,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}

func creditTxToModel(tx domain.CreditTransaction) CreditTransactionModel {
	meta, _ := json.Marshal(tx.Metadata)
	return CreditTransactionModel{
		ID:           tx.ID,
		UserID:       tx.UserID,
		Amount:       tx.Amount,
		Type:         string(tx.Type),
		Description:  tx.Description,
		BalanceAfter: tx.BalanceAfter,
		Metadata:     meta,
		CreatedAt:    tx.CreatedAt,
	}
}

func creditTxFromModel(m CreditTransactionModel) domain.CreditTransaction {
	var meta map[string]string
	if len(m.Metadata) > 0 {
		_ = json.Unmarshal(m.Metadata, &meta)
	}
	return domain.CreditTransaction{
		ID:           m.ID,
		UserID:       m.UserID,
		Amount:       m.Amount,
		Type:         domain.TransactionType(m.Type),
		Description:  m.Description,
		BalanceAfter: m.BalanceAfter,
		Metadata:     meta,
		CreatedAt:    m.CreatedAt,
	}
}
