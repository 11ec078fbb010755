package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bitbucket.org/mmdatafocus/pos_backend/models"
)

func (a *app) openCashRegisterHandler(c *gin.Context) {
	var input models.OpenCashRegisterInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	register, err := a.ledger.OpenCashRegister(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, register)
}

func (a *app) cashMovementHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var input models.NewCashMovement
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	movement, err := a.ledger.RegisterCashMovement(c.Request.Context(), id, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, movement)
}

func (a *app) closeCashRegisterHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var input models.CloseCashRegisterInput
	if !bindBody(c, &input) {
		return
	}
	register, err := a.ledger.CloseCashRegister(c.Request.Context(), id, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, register)
}

func (a *app) getCashRegisterHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	statement, err := a.ledger.GetCashRegister(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, statement)
}

func (a *app) openCurrentAccountHandler(c *gin.Context) {
	var input models.OpenCurrentAccountInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	account, err := a.ledger.OpenCurrentAccount(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, account)
}

func (a *app) accountPaymentHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var input models.AccountPaymentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	movement, err := a.ledger.RegisterAccountPayment(c.Request.Context(), id, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, movement)
}

func (a *app) accountAdjustmentHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var input models.AccountAdjustmentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	movement, err := a.ledger.AdjustAccountBalance(c.Request.Context(), id, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, movement)
}

type accountStatusRequest struct {
	Status models.AccountStatus `json:"status"`
}

func (a *app) accountStatusHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var req accountStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	account, err := a.ledger.ChangeAccountStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

func (a *app) getCurrentAccountHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	statement, err := a.ledger.GetCurrentAccount(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, statement)
}

func (a *app) stockAdjustmentHandler(c *gin.Context) {
	var input models.NewStockAdjustment
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	movement, err := a.ledger.AdjustStock(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, movement)
}

func (a *app) minimumStockHandler(c *gin.Context) {
	var input models.MinimumStockInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	stock, err := a.ledger.SetMinimumStock(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stock)
}
