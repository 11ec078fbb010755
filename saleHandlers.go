package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bitbucket.org/mmdatafocus/pos_backend/models"
)

func (a *app) createSaleHandler(c *gin.Context) {
	var input models.NewSale
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	sale, err := a.ledger.CreateSale(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sale)
}

func (a *app) getSaleHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	sale, err := a.ledger.GetSale(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

func (a *app) salePaymentHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var input models.SalePaymentInput
	if !bindBody(c, &input) {
		return
	}
	sale, err := a.ledger.ApplySalePayment(c.Request.Context(), id, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

func (a *app) approveSaleHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	sale, err := a.ledger.Approve(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

func (a *app) completeSaleHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var input models.SalePaymentInput
	if !bindBody(c, &input) {
		return
	}
	sale, err := a.ledger.Complete(c.Request.Context(), id, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

func (a *app) rejectSaleHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var input models.RejectSaleInput
	if !bindBody(c, &input) {
		return
	}
	sale, err := a.ledger.Reject(c.Request.Context(), id, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

func (a *app) annulSaleHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var input models.AnnulSaleInput
	if !bindBody(c, &input) {
		return
	}
	sale, err := a.ledger.Annul(c.Request.Context(), id, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

// authorizeSaleHandler requests the CAE synchronously, e.g. to retry after a
// provider outage from the POS itself.
func (a *app) authorizeSaleHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	sale, err := a.ledger.AuthorizeFiscal(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

func (a *app) convertBudgetHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var input models.ConvertBudgetInput
	if !bindBody(c, &input) {
		return
	}
	sale, err := a.ledger.ConvertBudget(c.Request.Context(), id, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sale)
}
