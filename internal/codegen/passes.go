package codegen

import (
	"github.com/tangzhangming/aotc/internal/mc"
)

// ============================================================================
// 机器指令 Pass 接口
// ============================================================================

// Pass 作用于已选择指令的 Pass
type Pass interface {
	Name() string
	// Run 就地改写指令，返回修改的条数
	Run(blocks [][]mc.Inst) int
}

// ============================================================================
// Pass 管理器
// ============================================================================

// PassManager Pass 管理器
type PassManager struct {
	passes []Pass
	stats  PassStats
}

// PassStats Pass 统计信息
type PassStats struct {
	PassesRun      int
	TotalChanges   int
	PerPassChanges map[string]int
}

// NewPassManager 创建 Pass 管理器
func NewPassManager() *PassManager {
	return &PassManager{
		stats: PassStats{
			PerPassChanges: make(map[string]int),
		},
	}
}

// AddPass 添加 Pass
func (pm *PassManager) AddPass(p Pass) {
	pm.passes = append(pm.passes, p)
}

// Run 按顺序运行所有 Pass
func (pm *PassManager) Run(blocks [][]mc.Inst) {
	for _, p := range pm.passes {
		pm.stats.PassesRun++
		if n := p.Run(blocks); n > 0 {
			pm.stats.TotalChanges += n
			pm.stats.PerPassChanges[p.Name()] += n
		}
	}
}

// RunUntilFixed 运行 Pass 直到不再有改变
func (pm *PassManager) RunUntilFixed(blocks [][]mc.Inst, maxIters int) {
	for i := 0; i < maxIters; i++ {
		before := pm.stats.TotalChanges
		pm.Run(blocks)
		if pm.stats.TotalChanges == before {
			break
		}
	}
}

// Stats 获取统计信息
func (pm *PassManager) Stats() PassStats {
	return pm.stats
}

// NewPeepholePipeline 标准窥孔 Pipeline
func NewPeepholePipeline() *PassManager {
	pm := NewPassManager()
	pm.AddPass(NewZeroIdiomPass())
	pm.AddPass(NewImmShrinkPass())
	return pm
}
