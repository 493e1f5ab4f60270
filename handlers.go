package main

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"prodtally/models"
	"prodtally/pkg/ocr"
	"prodtally/pkg/session"
	"prodtally/pkg/store"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var recordStore *store.Store

func setupRoutes(r *gin.Engine) {
	r.POST("/register", registerHandler)
	r.POST("/login", loginHandler)
	r.POST("/refresh", refreshHandler)
	r.POST("/revoke_refresh", revokeRefreshHandler)
	authGroup := r.Group("")
	authGroup.Use(jwtAuthMiddleware())
	authGroup.GET("/me", meHandler)
	authGroup.POST("/ocr/digitize", digitizeHandler)
	authGroup.POST("/sessions/edit_existing", editExistingHandler)
	authGroup.GET("/sessions/:id", getSessionHandler)
	authGroup.DELETE("/sessions/:id", discardSessionHandler)
	authGroup.POST("/sessions/:id/commit", commitSessionHandler)
	authGroup.GET("/sessions/:id/boxes", sessionBoxesHandler)
	authGroup.POST("/sessions/:id/blocks", addBlockHandler)
	authGroup.PUT("/sessions/:id/blocks/:bid/date", setBlockDateHandler)
	authGroup.POST("/sessions/:id/blocks/:bid/shifts", addShiftHandler)
	authGroup.PUT("/sessions/:id/blocks/:bid/shifts/:sidx", renameShiftHandler)
	authGroup.DELETE("/sessions/:id/blocks/:bid/shifts/:sidx", removeShiftHandler)
	authGroup.POST("/sessions/:id/blocks/:bid/shifts/:sidx/values", addValueHandler)
	authGroup.PUT("/sessions/:id/blocks/:bid/shifts/:sidx/values/:vidx", updateValueHandler)
	authGroup.DELETE("/sessions/:id/blocks/:bid/shifts/:sidx/values/:vidx", removeValueHandler)
	authGroup.GET("/producao", listProducaoHandler)
	authGroup.DELETE("/producao/:date", deleteProducaoHandler)
}

func jwtAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || len(authHeader) < 8 || authHeader[:7] != "Bearer " {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid Authorization header"})
			c.Abort()
			return
		}
		tokenString := authHeader[7:]
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrInvalidKeyType
			}
			return jwtSecret, nil
		})
		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid claims"})
			c.Abort()
			return
		}
		username, _ := claims["username"].(string)
		role, _ := claims["role"].(string)
		c.Set("username", username)
		if role != "" {
			c.Set("role", role)
		}
		c.Next()
	}
}

func meHandler(c *gin.Context) {
	usernameVal, _ := c.Get("username")
	if usernameVal == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "context missing username"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": usernameVal.(string)})
}

// getUserFromContext fetches the currently authenticated user using the username set by jwtAuthMiddleware
func getUserFromContext(c *gin.Context) (*models.User, bool) {
	unameVal, _ := c.Get("username")
	if unameVal == nil {
		return nil, false
	}
	uname := unameVal.(string)
	var user models.User
	if err := db.Where("username = ?", uname).First(&user).Error; err != nil {
		return nil, false
	}
	return &user, true
}

// resolveLabID picks the lab for a request: explicit lab_id wins, else the
// user's own lab.
func resolveLabID(c *gin.Context, user *models.User, explicit string) (uint, bool) {
	if explicit != "" {
		n, err := strconv.ParseUint(explicit, 10, 64)
		if err == nil && n > 0 {
			return uint(n), true
		}
		return 0, false
	}
	if user.LabID != nil {
		return *user.LabID, true
	}
	return 0, false
}

func registerHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := RegisterUser(req.Username, req.Password); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user registered successfully"})
}

func loginHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := Authenticate(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	// Generate JWT token. Resolve role name from RoleID (we only store role_id).
	roleName := ""
	if user.RoleID != nil {
		var r models.Role
		if err := db.First(&r, *user.RoleID).Error; err == nil {
			roleName = r.Name
		}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": user.Username,
		"role":     roleName,
		"exp":      time.Now().Add(time.Hour * 24).Unix(),
	})
	tokenString, err := token.SignedString(jwtSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	refreshToken, err := createAndStoreRefreshToken(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "login successful", "token": tokenString, "refresh_token": refreshToken})
}

// createAndStoreRefreshToken generates a random refresh token, stores its hash with expiry and returns the raw token string
func createAndStoreRefreshToken(userID uint) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)
	h := sha256.Sum256([]byte(token))
	th := hex.EncodeToString(h[:])
	rt := models.RefreshToken{UserID: userID, TokenHash: th, ExpiresAt: time.Now().Add(30 * 24 * time.Hour)}
	if err := db.Create(&rt).Error; err != nil {
		return "", err
	}
	return token, nil
}

func findRefreshTokenByRaw(token string) (*models.RefreshToken, error) {
	h := sha256.Sum256([]byte(token))
	th := hex.EncodeToString(h[:])
	var rt models.RefreshToken
	if err := db.Where("token_hash = ?", th).First(&rt).Error; err != nil {
		return nil, err
	}
	return &rt, nil
}

// refreshHandler exchanges a refresh token for a new access token and rotates the refresh token
func refreshHandler(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rt, err := findRefreshTokenByRaw(req.RefreshToken)
	if err != nil || rt.Revoked || time.Now().After(rt.ExpiresAt) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired refresh token"})
		return
	}
	var user models.User
	if err := db.First(&user, rt.UserID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	roleName := ""
	if user.RoleID != nil {
		var r models.Role
		if err := db.First(&r, *user.RoleID).Error; err == nil {
			roleName = r.Name
		}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": user.Username,
		"role":     roleName,
		"exp":      time.Now().Add(15 * time.Minute).Unix(),
	})
	tokenString, err := token.SignedString(jwtSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	// rotate refresh token: revoke existing and create new one
	db.Model(&models.RefreshToken{}).Where("id = ?", rt.ID).Update("revoked", true)
	newRT, err := createAndStoreRefreshToken(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to rotate refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": tokenString, "refresh_token": newRT})
}

// revokeRefreshHandler revokes a given refresh token (useful on logout)
func revokeRefreshHandler(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rt, err := findRefreshTokenByRaw(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "refresh token not found"})
		return
	}
	rt.Revoked = true
	if err := db.Save(rt).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "refresh token revoked"})
}

// digitizeHandler accepts a tally sheet photo (multipart "file" from a file
// picker, or a raw image body from a clipboard paste), stores it, runs the
// OCR pipeline and returns the new correction session. Recognition failures
// are recorded on the upload and fatal to this request only.
func digitizeHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	labID, ok := resolveLabID(c, user, c.PostForm("lab_id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no lab for user; pass lab_id"})
		return
	}

	fileName, fullPath, contentType, err := saveIncomingImage(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	up := models.SheetUpload{LabID: labID, FileName: fileName, StorePath: fullPath, ContentType: contentType}
	if err := db.Create(&up).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db save failed"})
		return
	}

	sess, err := submitDigitize(fullPath, labID)
	if err != nil {
		up.Failed = true
		up.FailedReason = snippetForDB(err.Error())
		db.Save(&up)
		status := http.StatusInternalServerError
		if errors.Is(err, ocr.ErrNoSheetData) {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{"error": err.Error(), "upload_id": up.ID})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess, "upload_id": up.ID})
}

// saveIncomingImage funnels both submission shapes into one stored file.
func saveIncomingImage(c *gin.Context) (name, fullPath, contentType string, err error) {
	baseDir := filepath.Join(uploadBaseDir(), "sheets")
	if mkErr := os.MkdirAll(baseDir, 0755); mkErr != nil {
		return "", "", "", mkErr
	}
	if file, fErr := c.FormFile("file"); fErr == nil {
		if file.Size > 10*1024*1024 {
			return "", "", "", errors.New("file too large (max 10MB)")
		}
		name = filepath.Base(file.Filename)
		fullPath = filepath.Join(baseDir, name)
		contentType = file.Header.Get("Content-Type")
		if err = c.SaveUploadedFile(file, fullPath); err != nil {
			return "", "", "", err
		}
		return name, fullPath, contentType, nil
	}
	// clipboard paste: raw image body
	contentType = c.GetHeader("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return "", "", "", errors.New("file missing")
	}
	data, rErr := io.ReadAll(io.LimitReader(c.Request.Body, 10*1024*1024+1))
	if rErr != nil || len(data) == 0 {
		return "", "", "", errors.New("empty image body")
	}
	if len(data) > 10*1024*1024 {
		return "", "", "", errors.New("file too large (max 10MB)")
	}
	ext := ".png"
	if contentType == "image/jpeg" {
		ext = ".jpg"
	}
	name = "paste-" + time.Now().Format("20060102-150405") + ext
	fullPath = filepath.Join(baseDir, name)
	if err = os.WriteFile(fullPath, data, 0644); err != nil {
		return "", "", "", err
	}
	return name, fullPath, contentType, nil
}

func snippetForDB(s string) string {
	if len(s) > 250 {
		return s[:250]
	}
	return s
}

// editExistingHandler opens a correction session over records already in the
// database, bypassing OCR entirely. Same editor, same commit path.
func editExistingHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	var req struct {
		LabID uint   `json:"lab_id"`
		Date  string `json:"date" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	labID := req.LabID
	if labID == 0 {
		if user.LabID == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no lab for user; pass lab_id"})
			return
		}
		labID = *user.LabID
	}
	if !ocr.ValidISODate(req.Date) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	records, err := recordStore.ListByLabAndDate(labID, req.Date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if len(records) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no records for date"})
		return
	}
	sess := session.LoadFromRecords(labID, records)
	sessions.Put(sess)
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

func getSession(c *gin.Context) (*session.Session, bool) {
	sess, ok := sessions.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return nil, false
	}
	return sess, true
}

func getSessionHandler(c *gin.Context) {
	sess, ok := getSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

// discardSessionHandler drops a session before commit. No external side
// effects; nothing was persisted yet.
func discardSessionHandler(c *gin.Context) {
	if _, ok := getSession(c); !ok {
		return
	}
	sessions.Remove(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"message": "session discarded"})
}

// commitSessionHandler flattens and persists a session as one batch. Any
// block without a valid date rejects the whole commit; a persistence failure
// keeps the session alive so the reviewer retries without re-running OCR.
func commitSessionHandler(c *gin.Context) {
	sess, ok := getSession(c)
	if !ok {
		return
	}
	records, err := sess.Flatten()
	if err != nil {
		var inv *session.InvalidDatesError
		if errors.As(err, &inv) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid block dates", "block_ids": inv.BlockIDs})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := recordStore.UpsertBatch(records); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "persist failed, session preserved: " + err.Error()})
		return
	}
	sessions.Remove(sess.ID)
	c.JSON(http.StatusOK, gin.H{"message": "committed", "records": len(records)})
}

// sessionBoxesHandler maps every OCR-linked cell to its rectangle at the
// requested display size, for click-to-highlight in the editor.
func sessionBoxesHandler(c *gin.Context) {
	sess, ok := getSession(c)
	if !ok {
		return
	}
	dispW, _ := strconv.Atoi(c.Query("w"))
	dispH, _ := strconv.Atoi(c.Query("h"))
	if dispW <= 0 || dispH <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "w and h query params required"})
		return
	}
	type boxOut struct {
		BlockID    string  `json:"block_id"`
		ShiftIndex int     `json:"shift_index"`
		ValueIndex int     `json:"value_index"`
		Box        ocr.Box `json:"box"`
	}
	var out []boxOut
	for _, b := range sess.Blocks {
		for si, row := range b.Shifts {
			for vi, cell := range row.Values {
				if cell.Word == nil {
					continue
				}
				out = append(out, boxOut{
					BlockID:    b.ID,
					ShiftIndex: si,
					ValueIndex: vi,
					Box:        ocr.MapBoxToDisplay(ocr.WordBox(cell.Word), sess.ImageWidth, sess.ImageHeight, dispW, dispH),
				})
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"boxes": out})
}

func addBlockHandler(c *gin.Context) {
	sess, ok := getSession(c)
	if !ok {
		return
	}
	var req struct {
		Date string `json:"date"`
	}
	_ = c.ShouldBindJSON(&req)
	b := sess.AddBlock(req.Date)
	c.JSON(http.StatusOK, gin.H{"block": b})
}

// sessionEdit runs one mutation and renders the uniform response.
func sessionEdit(c *gin.Context, fn func(sess *session.Session) error) {
	sess, ok := getSession(c)
	if !ok {
		return
	}
	if err := fn(sess); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, session.ErrBlockNotFound) || errors.Is(err, session.ErrShiftNotFound) || errors.Is(err, session.ErrValueNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

func shiftIndexParam(c *gin.Context) int {
	n, err := strconv.Atoi(c.Param("sidx"))
	if err != nil {
		return -1
	}
	return n
}

func valueIndexParam(c *gin.Context) int {
	n, err := strconv.Atoi(c.Param("vidx"))
	if err != nil {
		return -1
	}
	return n
}

func setBlockDateHandler(c *gin.Context) {
	var req struct {
		Date string `json:"date" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sessionEdit(c, func(sess *session.Session) error {
		return sess.SetBlockDate(c.Param("bid"), req.Date)
	})
}

func addShiftHandler(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sessionEdit(c, func(sess *session.Session) error {
		return sess.AddShift(c.Param("bid"), req.Name)
	})
}

func renameShiftHandler(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sessionEdit(c, func(sess *session.Session) error {
		return sess.RenameShift(c.Param("bid"), shiftIndexParam(c), req.Name)
	})
}

func removeShiftHandler(c *gin.Context) {
	sessionEdit(c, func(sess *session.Session) error {
		return sess.RemoveShift(c.Param("bid"), shiftIndexParam(c))
	})
}

func addValueHandler(c *gin.Context) {
	var req struct {
		Raw string `json:"raw" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sessionEdit(c, func(sess *session.Session) error {
		return sess.AddValue(c.Param("bid"), shiftIndexParam(c), req.Raw)
	})
}

func updateValueHandler(c *gin.Context) {
	var req struct {
		Raw string `json:"raw" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sessionEdit(c, func(sess *session.Session) error {
		return sess.UpdateValue(c.Param("bid"), shiftIndexParam(c), valueIndexParam(c), req.Raw)
	})
}

func removeValueHandler(c *gin.Context) {
	sessionEdit(c, func(sess *session.Session) error {
		return sess.RemoveValue(c.Param("bid"), shiftIndexParam(c), valueIndexParam(c))
	})
}

// listProducaoHandler lists committed records for a lab and date range.
func listProducaoHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	labID, ok := resolveLabID(c, user, c.Query("lab_id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no lab for user; pass lab_id"})
		return
	}
	from := c.Query("from")
	to := c.Query("to")
	if !ocr.ValidISODate(from) || !ocr.ValidISODate(to) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from and to must be YYYY-MM-DD"})
		return
	}
	records, err := recordStore.ListByLabAndDateRange(labID, from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, records)
}

// deleteProducaoHandler clears one date for a lab. Admin only; this is the
// explicit destructive path, separate from commits.
func deleteProducaoHandler(c *gin.Context) {
	role, _ := c.Get("role")
	if role != "administrator" {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	labID, ok := resolveLabID(c, user, c.Query("lab_id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no lab for user; pass lab_id"})
		return
	}
	date := c.Param("date")
	if !ocr.ValidISODate(date) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	n, err := recordStore.DeleteByDate(labID, date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}
