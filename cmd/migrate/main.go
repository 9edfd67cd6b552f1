package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/classhub-api/internal/models"
	"github.com/noah-isme/classhub-api/internal/repository"
	"github.com/noah-isme/classhub-api/internal/service"
	"github.com/noah-isme/classhub-api/pkg/config"
	"github.com/noah-isme/classhub-api/pkg/database"
	"github.com/noah-isme/classhub-api/pkg/logger"
)

type userCreator interface {
	Create(ctx context.Context, user *models.User) error
}

// seedAccount is one account created from the command line.
type seedAccount struct {
	Email         string      `validate:"required,email"`
	Password      string      `validate:"required,min=8"`
	DisplayName   string      `validate:"required"`
	Role          models.Role `validate:"required,role"`
	Department    string      `validate:"required_if=Role STUDENT"`
	Session       string      `validate:"required_if=Role STUDENT"`
	SectionLetter string      `validate:"omitempty,len=1"`
}

func main() {
	var account seedAccount
	var role string
	flag.StringVar(&account.Email, "seed-user", "", "Create an account with this email; password is read from SEED_USER_PASSWORD")
	flag.StringVar(&role, "seed-role", string(models.RoleAdmin), "Role of the seeded account: ADMIN, TEACHER or STUDENT")
	flag.StringVar(&account.DisplayName, "seed-name", "Administrator", "Display name for the seeded account")
	flag.StringVar(&account.Department, "seed-department", "", "Department code, required for students")
	flag.StringVar(&account.Session, "seed-session", "", "Intake session, required for students")
	flag.StringVar(&account.SectionLetter, "seed-section", "", "Section letter for students")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx := context.Background()
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	applied, err := database.NewMigrator(db, logr).Up(ctx)
	if err != nil {
		logr.Fatal("migration failed", zap.Error(err))
	}
	logr.Info("migrations complete", zap.Strings("applied", applied))

	if account.Email == "" {
		return
	}
	account.Role = models.Role(strings.ToUpper(strings.TrimSpace(role)))
	account.Password = os.Getenv("SEED_USER_PASSWORD")
	created, err := seedUser(ctx, repository.NewUserRepository(db), service.NewValidator(), account)
	if err != nil {
		logr.Fatal("seed user failed", zap.Error(err))
	}
	if created {
		logr.Info("user seeded", zap.String("email", account.Email), zap.String("role", string(account.Role)))
	} else {
		logr.Info("user already exists", zap.String("email", account.Email))
	}
}

// seedUser validates and creates an active account. An existing email is not an error.
func seedUser(ctx context.Context, users userCreator, validate *validator.Validate, account seedAccount) (bool, error) {
	account.Email = strings.ToLower(strings.TrimSpace(account.Email))
	if err := validate.Struct(account); err != nil {
		return false, fmt.Errorf("invalid seed account: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(account.Password), bcrypt.DefaultCost)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}
	user := &models.User{
		Email:          account.Email,
		PasswordHash:   string(hash),
		DisplayName:    account.DisplayName,
		Role:           account.Role,
		DepartmentCode: account.Department,
		Active:         true,
	}
	if account.Session != "" {
		user.Session = &account.Session
	}
	if account.SectionLetter != "" {
		letter := strings.ToUpper(account.SectionLetter)
		user.SectionLetter = &letter
	}
	err = users.Create(ctx, user)
	if errors.Is(err, repository.ErrUniqueViolation) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
