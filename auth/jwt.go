package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/dgrijalva/jwt-go/request"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const TokenDuration = time.Hour * 24

var ErrorAuth = fmt.Errorf("auth error")
var ErrorCreateUser = fmt.Errorf("can't create user")

type Config struct {
	PublicKeyPath        string
	PrivateKeyPath       string
	DefaultAdminPassword string
}

type Token struct {
	AccessToken string `json:"access_token"`
}

// JWTAuth signs and validates RS512 bearer tokens for the HTTP API.
type JWTAuth struct {
	privateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
	cfg        *Config
	db         *DB
}

func NewAuth(conf Config, db *DB) (*JWTAuth, error) {
	jwtAuth := &JWTAuth{
		cfg: &conf,
		db:  db,
	}

	var err error
	if conf.PrivateKeyPath != "" {
		jwtAuth.privateKey, err = loadPrivateKey(conf.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("error loading private auth key: %s", err)
		}
		logrus.Info("private auth key loaded")
	}

	if conf.PublicKeyPath != "" {
		jwtAuth.PublicKey, err = loadPublicKey(conf.PublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("error loading public auth key: %s", err)
		}
		logrus.Info("public auth key loaded")
	}

	count, err := db.UserCount()
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %s", err)
	}

	if count == 0 {
		username := "admin"
		password := conf.DefaultAdminPassword

		// create admin user automatically
		_, _, err = jwtAuth.Register(username, password)
		if err != nil {
			return nil, fmt.Errorf("failed to register user: %s", err)
		}
		logrus.Warningf("new user created:\nUsername: %s\nPassword:%s", username, password)
	}

	return jwtAuth, nil
}

func (j *JWTAuth) GenerateToken(userID uint) (string, error) {
	if j.privateKey == nil {
		err := fmt.Errorf("can't generate token - private key not loaded")
		logrus.Error(err)
		return "", err
	}

	t := jwt.New(jwt.SigningMethodRS512)
	claims := t.Claims.(jwt.MapClaims)

	claims["exp"] = time.Now().Add(TokenDuration).Unix()
	claims["iat"] = time.Now().Unix()
	claims["sub"] = userID

	t.Claims = claims

	return t.SignedString(j.privateKey)
}

func (j *JWTAuth) Authenticate(username, password string) (res Token, err error) {
	user, err := j.db.UserByName(username)
	if err != nil {
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil {
		res.AccessToken, err = j.GenerateToken(user.ID)
		return
	}

	err = ErrorAuth

	return
}

// Validate checks the bearer token of a request and returns the user id.
func (j *JWTAuth) Validate(req *http.Request) (bool, uint64) {
	token, err := j.parseTokenFromRequest(req)
	if err != nil || !token.Valid {
		logrus.Debugf("token not valid: %s", err)
		return false, 0
	}

	sub, ok := token.Claims.(jwt.MapClaims)["sub"].(float64)
	if !ok {
		return false, 0
	}

	return true, uint64(sub)
}

func (j *JWTAuth) parseTokenFromRequest(req *http.Request) (*jwt.Token, error) {
	if j.PublicKey == nil {
		err := fmt.Errorf("can't validate token - public key not loaded")
		logrus.Error(err)
		return nil, err
	}

	return request.ParseFromRequest(req, request.AuthorizationHeaderExtractor, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.PublicKey, nil
	})
}

func (j *JWTAuth) Register(username, password string) (*Token, *User, error) {
	newUser := User{}
	newUser.Username = username

	hash, err := bcrypt.GenerateFromPassword([]byte(password), 10)
	if err != nil {
		logrus.Error(err)
		return nil, nil, ErrorCreateUser
	}
	newUser.PasswordHash = string(hash)

	user, err := j.db.UserCreate(&newUser)
	if err != nil {
		logrus.Error(err)
		return nil, nil, ErrorCreateUser
	}

	t, err := j.GenerateToken(user.ID)
	if err != nil {
		logrus.Error(err)
		return nil, nil, ErrorCreateUser
	}

	return &Token{AccessToken: t}, user, nil
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	pemBytes, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	data, _ := pem.Decode(pemBytes)
	if data == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}

	return x509.ParsePKCS1PrivateKey(data.Bytes)
}

func loadPublicKey(path string) (*rsa.PublicKey, error) {
	pemBytes, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	data, _ := pem.Decode(pemBytes)
	if data == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}

	parsed, err := x509.ParsePKIXPublicKey(data.Bytes)
	if err != nil {
		return nil, err
	}

	rsaPub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key: %s", path)
	}

	return rsaPub, nil
}
