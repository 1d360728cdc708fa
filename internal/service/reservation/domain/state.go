// internal/service/reservation/domain/state.go
package domain

// SagaState 定义了一次预占流程（及其中每个商品）的状态
type SagaState string

const (
	StateSelecting    SagaState = "SELECTING"    // 正在挑选待处理订单
	StateNoOrder      SagaState = "NO_ORDER"     // 没有可处理的订单
	StatePlanning     SagaState = "PLANNING"     // 为商品计算仓库划拨
	StateLocking      SagaState = "LOCKING"      // 获取 (仓库, 商品) 锁
	StateCommitting   SagaState = "COMMITTING"   // 向库存提交预占
	StateRecorded     SagaState = "RECORDED"     // 商品预占已写入账本
	StateCompensating SagaState = "COMPENSATING" // 撤销当前商品已提交的预占
	StateCompleted    SagaState = "COMPLETED"    // 订单全部商品预占成功
	StateAborted      SagaState = "ABORTED"      // 订单中止
)

// OrderStatus 是订单在持久化层的状态，由订单选择器和下游监听器维护。
type OrderStatus string

const (
	OrderStatusNew        OrderStatus = "NEW"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusReserved   OrderStatus = "RESERVED"
	OrderStatusFailed     OrderStatus = "FAILED"
)
