package payment

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

type TradeType string

const (
	TradeTypeJSAPI  TradeType = "JSAPI"
	TradeTypeNative TradeType = "NATIVE"
	TradeTypeApp    TradeType = "APP"
	TradeTypeMWeb   TradeType = "MWEB"
)

// UnifiedOrderRequest 统一下单参数，TotalFee 以元为单位
type UnifiedOrderRequest struct {
	Body           string
	OutTradeNo     string
	TotalFee       decimal.Decimal
	SpbillCreateIP string
	NotifyURL      string
	TradeType      TradeType
	// OpenID JSAPI 支付必填
	OpenID string
	// ProductID NATIVE 支付必填
	ProductID  string
	Attach     string
	TimeExpire string
}

type UnifiedOrderResponse struct {
	PrepayID  string
	TradeType TradeType
	CodeURL   string
	MWebURL   string
	Raw       Params
}

// UnifiedOrder 统一下单
// 接口文档: https://pay.weixin.qq.com/wiki/doc/api/jsapi.php?chapter=9_1
func (c *Client) UnifiedOrder(ctx context.Context, req UnifiedOrderRequest) (*UnifiedOrderResponse, error) {
	if req.Body == "" || req.OutTradeNo == "" || req.NotifyURL == "" || req.TradeType == "" {
		return nil, fmt.Errorf("body, out_trade_no, notify_url and trade_type are required")
	}
	if req.TradeType == TradeTypeJSAPI && req.OpenID == "" {
		return nil, fmt.Errorf("openid is required for JSAPI trade")
	}
	if req.TradeType == TradeTypeNative && req.ProductID == "" {
		return nil, fmt.Errorf("product_id is required for NATIVE trade")
	}
	fen, err := ToFen(req.TotalFee)
	if err != nil {
		return nil, err
	}

	result, err := c.Do(ctx, unifiedOrderPath, Params{
		"body":             req.Body,
		"out_trade_no":     req.OutTradeNo,
		"total_fee":        strconv.FormatInt(fen, 10),
		"spbill_create_ip": req.SpbillCreateIP,
		"notify_url":       req.NotifyURL,
		"trade_type":       string(req.TradeType),
		"openid":           req.OpenID,
		"product_id":       req.ProductID,
		"attach":           req.Attach,
		"time_expire":      req.TimeExpire,
	})
	if err != nil {
		return nil, err
	}
	if result["prepay_id"] == "" {
		return nil, fmt.Errorf("unified order: empty prepay_id")
	}
	return &UnifiedOrderResponse{
		PrepayID:  result["prepay_id"],
		TradeType: TradeType(result["trade_type"]),
		CodeURL:   result["code_url"],
		MWebURL:   result["mweb_url"],
		Raw:       result,
	}, nil
}

// MicropayRequest 付款码支付参数
type MicropayRequest struct {
	Body           string
	OutTradeNo     string
	TotalFee       decimal.Decimal
	SpbillCreateIP string
	// AuthCode 用户付款码
	AuthCode string
	Attach   string
}

// Transaction 已支付订单的关键字段
type Transaction struct {
	TransactionID string
	OutTradeNo    string
	OpenID        string
	TotalFee      decimal.Decimal
	TimeEnd       string
	TradeState    string
	Raw           Params
}

// Micropay 付款码支付
// 返回 IsUserPaying(err) 为真时，应通过 OrderQuery 轮询支付结果。
func (c *Client) Micropay(ctx context.Context, req MicropayRequest) (*Transaction, error) {
	if req.Body == "" || req.OutTradeNo == "" || req.AuthCode == "" || req.SpbillCreateIP == "" {
		return nil, fmt.Errorf("body, out_trade_no, auth_code and spbill_create_ip are required")
	}
	fen, err := ToFen(req.TotalFee)
	if err != nil {
		return nil, err
	}

	result, err := c.Do(ctx, micropayPath, Params{
		"body":             req.Body,
		"out_trade_no":     req.OutTradeNo,
		"total_fee":        strconv.FormatInt(fen, 10),
		"spbill_create_ip": req.SpbillCreateIP,
		"auth_code":        req.AuthCode,
		"attach":           req.Attach,
	})
	if err != nil {
		return nil, err
	}
	return transactionFrom(result)
}

// OrderQuery 查询订单，transactionID 与 outTradeNo 二选一
func (c *Client) OrderQuery(ctx context.Context, transactionID, outTradeNo string) (*Transaction, error) {
	if transactionID == "" && outTradeNo == "" {
		return nil, fmt.Errorf("transaction_id or out_trade_no is required")
	}
	result, err := c.Do(ctx, orderQueryPath, Params{
		"transaction_id": transactionID,
		"out_trade_no":   outTradeNo,
	})
	if err != nil {
		return nil, err
	}
	return transactionFrom(result)
}

func transactionFrom(result Params) (*Transaction, error) {
	tx := &Transaction{
		TransactionID: result["transaction_id"],
		OutTradeNo:    result["out_trade_no"],
		OpenID:        result["openid"],
		TimeEnd:       result["time_end"],
		TradeState:    result["trade_state"],
		Raw:           result,
	}
	if fee := result["total_fee"]; fee != "" {
		fen, err := strconv.ParseInt(fee, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse total_fee %q: %w", fee, err)
		}
		tx.TotalFee = FenToYuan(fen)
	}
	return tx, nil
}
